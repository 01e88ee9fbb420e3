package workflow

import "slices"

// Rule is one row of a transition table. An empty To keeps the current status.
// LevelScoped rules are restricted to the authority owning the current escalation level.
type Rule struct {
	Action      Action
	From        []Status
	To          Status
	Roles       []Role
	LevelScoped bool

	apply func(req Request, delta *Delta) error
}

func (r Rule) matches(action Action, status Status) bool {
	return r.Action == action && slices.Contains(r.From, status)
}

func (r Rule) permits(role Role, level int) bool {
	if r.LevelScoped {
		return role == AuthorityAt(level)
	}
	return slices.Contains(r.Roles, role)
}

var tables = map[Entity][]Rule{
	EntityIssue:       issueRules,
	EntityFundRequest: fundRules,
}

var statuses = map[Entity][]Status{
	EntityIssue:       {StatusSubmitted, StatusVIVerified, StatusPDOAssigned, StatusInProgress, StatusResolved, StatusClosed},
	EntityFundRequest: {StatusPending, StatusApproved, StatusRejected, StatusDisbursed},
}

// Transition validates req against the entity's table and returns the resulting delta.
// The state check runs before the role check, so an impossible action is always
// reported as ErrIllegalTransition whoever asks.
func Transition(req Request) (Delta, error) {
	rule, ok := find(req.Entity, req.Action, req.Current.Status)
	if !ok {
		return Delta{}, reject(ErrIllegalTransition, req, "")
	}
	if rule.Action == ActionEscalate && req.Current.EscalationLevel >= MaxEscalationLevel {
		return Delta{}, reject(ErrIllegalTransition, req, "already at highest escalation level")
	}
	if !rule.permits(req.Actor.Role, req.Current.EscalationLevel) {
		return Delta{}, reject(ErrUnauthorized, req, "")
	}
	if req.Actor.ID == "" {
		return Delta{}, reject(ErrInvalidParams, req, "actor id is required")
	}
	if req.Now.IsZero() {
		return Delta{}, reject(ErrInvalidParams, req, "transition time is required")
	}

	delta := Delta{
		Entity: req.Entity,
		Action: req.Action,
		From:   req.Current,
		To:     req.Current,
		Fields: make(map[Field]any),
	}
	if rule.To != "" {
		delta.To.Status = rule.To
	}
	if rule.apply != nil {
		if err := rule.apply(req, &delta); err != nil {
			return Delta{}, err
		}
	}
	return delta, nil
}

func find(entity Entity, action Action, status Status) (Rule, bool) {
	for _, rule := range tables[entity] {
		if rule.matches(action, status) {
			return rule, true
		}
	}
	return Rule{}, false
}

// Table returns a copy of the transition rules for entity.
func Table(entity Entity) []Rule {
	rules := tables[entity]
	out := make([]Rule, len(rules))
	for i, r := range rules {
		r.From = slices.Clone(r.From)
		r.Roles = slices.Clone(r.Roles)
		r.apply = nil
		out[i] = r
	}
	return out
}

// Statuses lists the persisted statuses of entity in lifecycle order.
func Statuses(entity Entity) []Status {
	return slices.Clone(statuses[entity])
}

// ValidStatus reports whether status is a persisted status of entity.
func ValidStatus(entity Entity, status Status) bool {
	return slices.Contains(statuses[entity], status)
}

// Terminal reports whether no rule leaves status.
func Terminal(entity Entity, status Status) bool {
	if !ValidStatus(entity, status) {
		return false
	}
	for _, rule := range tables[entity] {
		if slices.Contains(rule.From, status) {
			return false
		}
	}
	return true
}

// Allowed lists the actions role may take from state, in table order.
func Allowed(entity Entity, state State, role Role) []Action {
	var actions []Action
	for _, rule := range tables[entity] {
		if !slices.Contains(rule.From, state.Status) || slices.Contains(actions, rule.Action) {
			continue
		}
		if rule.Action == ActionEscalate && state.EscalationLevel >= MaxEscalationLevel {
			continue
		}
		if rule.permits(role, state.EscalationLevel) {
			actions = append(actions, rule.Action)
		}
	}
	return actions
}

// AuthorityAt returns the role that owns an issue at the given escalation level.
func AuthorityAt(level int) Role {
	switch {
	case level <= 0:
		return RolePDO
	case level == 1:
		return RoleTDO
	default:
		return RoleDDO
	}
}

// DisplayStatus folds the escalation level into the status shown to users.
func DisplayStatus(entity Entity, state State) Status {
	if entity != EntityIssue || Terminal(entity, state.Status) {
		return state.Status
	}
	switch state.EscalationLevel {
	case 1:
		return StatusEscalatedToTDO
	case MaxEscalationLevel:
		return StatusEscalatedToDDO
	default:
		return state.Status
	}
}

func stamp(at, by Field) func(Request, *Delta) error {
	return func(req Request, d *Delta) error {
		d.Fields[at] = req.Now
		d.Fields[by] = req.Actor.ID
		return nil
	}
}

func stampWithNote(at, by, note Field) func(Request, *Delta) error {
	return func(req Request, d *Delta) error {
		d.Fields[at] = req.Now
		d.Fields[by] = req.Actor.ID
		if req.Params.Note != "" {
			d.Fields[note] = req.Params.Note
		}
		return nil
	}
}
