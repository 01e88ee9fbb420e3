package workflow

var (
	activeIssue   = []Status{StatusPDOAssigned, StatusInProgress}
	fieldOfficers = []Role{RolePDO, RoleTDO, RoleDDO}
)

var issueRules = []Rule{
	{Action: ActionVerify, From: []Status{StatusSubmitted}, To: StatusVIVerified,
		Roles: []Role{RoleVillageIncharge}, apply: stamp(FieldVerifiedAt, FieldVerifiedBy)},
	{Action: ActionClose, From: []Status{StatusSubmitted}, To: StatusClosed,
		Roles: []Role{RoleVillageIncharge, RoleAdmin}, apply: stampWithNote(FieldClosedAt, FieldClosedBy, FieldCloseReason)},
	{Action: ActionAssign, From: []Status{StatusVIVerified}, To: StatusPDOAssigned,
		Roles: []Role{RolePDO}, apply: assignWorker},
	{Action: ActionClose, From: []Status{StatusVIVerified}, To: StatusClosed,
		Roles: []Role{RoleAdmin}, apply: stampWithNote(FieldClosedAt, FieldClosedBy, FieldCloseReason)},
	{Action: ActionStart, From: []Status{StatusPDOAssigned}, To: StatusInProgress,
		Roles: fieldOfficers, apply: startWork},
	{Action: ActionReassign, From: activeIssue, To: StatusPDOAssigned,
		LevelScoped: true, apply: assignWorker},
	{Action: ActionEscalate, From: activeIssue,
		LevelScoped: true, apply: escalate},
	{Action: ActionResolve, From: activeIssue, To: StatusResolved,
		Roles: fieldOfficers, apply: stampWithNote(FieldResolvedAt, FieldResolvedBy, FieldResolutionNote)},
	{Action: ActionClose, From: activeIssue, To: StatusClosed,
		Roles: []Role{RoleAdmin}, apply: stampWithNote(FieldClosedAt, FieldClosedBy, FieldCloseReason)},
}

func assignWorker(req Request, d *Delta) error {
	if req.Params.WorkerID == "" {
		return reject(ErrInvalidParams, req, "workerId is required")
	}
	d.Fields[FieldAssignedAt] = req.Now
	d.Fields[FieldAssignedBy] = req.Actor.ID
	d.Fields[FieldAssignedWorkerID] = req.Params.WorkerID
	return nil
}

func startWork(req Request, d *Delta) error {
	d.Fields[FieldInProgressAt] = req.Now
	return nil
}

func escalate(req Request, d *Delta) error {
	d.To.EscalationLevel = req.Current.EscalationLevel + 1
	d.Fields[FieldEscalatedAt] = req.Now
	d.Fields[FieldEscalatedBy] = req.Actor.ID
	d.Fields[FieldEscalationLevel] = d.To.EscalationLevel
	return nil
}
