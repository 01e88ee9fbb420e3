// Package workflow holds the status machines shared by issues and fund requests.
// It performs no I/O: callers load the current state, ask for a Delta and persist it.
package workflow

import "time"

// Entity names a workflow-driven record type.
type Entity string

const (
	EntityIssue       Entity = "issue"
	EntityFundRequest Entity = "fund_request"
)

// Status is a persisted workflow status.
type Status string

// Issue statuses.
const (
	StatusSubmitted   Status = "submitted"
	StatusVIVerified  Status = "vi_verified"
	StatusPDOAssigned Status = "pdo_assigned"
	StatusInProgress  Status = "in_progress"
	StatusResolved    Status = "resolved"
	StatusClosed      Status = "closed"

	// Display-only statuses derived from the escalation level.
	StatusEscalatedToTDO Status = "escalated_to_tdo"
	StatusEscalatedToDDO Status = "escalated_to_ddo"
)

// Fund request statuses.
const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusDisbursed Status = "disbursed"
)

// Action is a verb an actor applies to a record.
type Action string

const (
	ActionVerify    Action = "verify"
	ActionAssign    Action = "assign"
	ActionStart     Action = "start"
	ActionReassign  Action = "reassign"
	ActionEscalate  Action = "escalate"
	ActionResolve   Action = "resolve"
	ActionClose     Action = "close"
	ActionRecommend Action = "recommend"
	ActionApprove   Action = "approve"
	ActionReject    Action = "reject"
	ActionDisburse  Action = "disburse"
)

// Role mirrors the user roles that take part in workflows.
type Role string

const (
	RoleVillager        Role = "VILLAGER"
	RoleVillageIncharge Role = "VILLAGE_INCHARGE"
	RolePDO             Role = "PDO"
	RoleTDO             Role = "TDO"
	RoleDDO             Role = "DDO"
	RoleAdmin           Role = "ADMIN"
)

// Field is the camelCase name of a column written alongside a transition.
type Field string

const (
	FieldVerifiedAt       Field = "verifiedAt"
	FieldVerifiedBy       Field = "verifiedBy"
	FieldAssignedAt       Field = "assignedAt"
	FieldAssignedBy       Field = "assignedBy"
	FieldAssignedWorkerID Field = "assignedWorkerId"
	FieldInProgressAt     Field = "inProgressAt"
	FieldEscalatedAt      Field = "escalatedAt"
	FieldEscalatedBy      Field = "escalatedBy"
	FieldEscalationLevel  Field = "escalationLevel"
	FieldResolvedAt       Field = "resolvedAt"
	FieldResolvedBy       Field = "resolvedBy"
	FieldResolutionNote   Field = "resolutionNote"
	FieldClosedAt         Field = "closedAt"
	FieldClosedBy         Field = "closedBy"
	FieldCloseReason      Field = "closeReason"

	FieldTDORecommendedAt Field = "tdoRecommendedAt"
	FieldTDORecommendedBy Field = "tdoRecommendedBy"
	FieldTDOComment       Field = "tdoComment"
	FieldApprovedAt       Field = "approvedAt"
	FieldApprovedBy       Field = "approvedBy"
	FieldDDOComment       Field = "ddoComment"
	FieldRejectedAt       Field = "rejectedAt"
	FieldRejectedBy       Field = "rejectedBy"
	FieldRejectionReason  Field = "rejectionReason"
	FieldDisbursedAt      Field = "disbursedAt"
	FieldDisbursedBy      Field = "disbursedBy"
)

// MaxEscalationLevel is the highest escalation counter value (DDO).
const MaxEscalationLevel = 2

// Actor is the authenticated caller requesting a transition.
type Actor struct {
	ID   string
	Role Role
}

// State is the workflow-relevant part of a record.
type State struct {
	Status          Status `json:"status"`
	EscalationLevel int    `json:"escalationLevel"`
}

// Params carries optional action input.
type Params struct {
	WorkerID string
	Note     string
}

// Request describes one transition attempt.
type Request struct {
	Entity  Entity
	Current State
	Action  Action
	Actor   Actor
	Params  Params
	Now     time.Time
}

// Delta is the outcome of a legal transition. Fields lists the columns to persist with it.
type Delta struct {
	Entity Entity
	Action Action
	From   State
	To     State
	Fields map[Field]any
}

// StatusChanged reports whether the primary status moved.
func (d Delta) StatusChanged() bool {
	return d.From.Status != d.To.Status
}
