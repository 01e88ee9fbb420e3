package models

import (
	"time"

	"github.com/noah-isme/civic-portal-api/internal/workflow"
)

// FundRequest asks the district for money, usually against an issue.
type FundRequest struct {
	ID          string          `db:"id" json:"id"`
	IssueID     *string         `db:"issue_id" json:"issueId,omitempty"`
	Amount      float64         `db:"amount" json:"amount"`
	Purpose     string          `db:"purpose" json:"purpose"`
	Status      workflow.Status `db:"status" json:"status"`
	RequesterID string          `db:"requester_id" json:"requesterId"`
	Jurisdiction
	Version   int       `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`

	TDORecommendedAt *time.Time `db:"tdo_recommended_at" json:"tdoRecommendedAt,omitempty"`
	TDORecommendedBy *string    `db:"tdo_recommended_by" json:"tdoRecommendedBy,omitempty"`
	TDOComment       *string    `db:"tdo_comment" json:"tdoComment,omitempty"`
	ApprovedAt       *time.Time `db:"approved_at" json:"approvedAt,omitempty"`
	ApprovedBy       *string    `db:"approved_by" json:"approvedBy,omitempty"`
	DDOComment       *string    `db:"ddo_comment" json:"ddoComment,omitempty"`
	RejectedAt       *time.Time `db:"rejected_at" json:"rejectedAt,omitempty"`
	RejectedBy       *string    `db:"rejected_by" json:"rejectedBy,omitempty"`
	RejectionReason  *string    `db:"rejection_reason" json:"rejectionReason,omitempty"`
	DisbursedAt      *time.Time `db:"disbursed_at" json:"disbursedAt,omitempty"`
	DisbursedBy      *string    `db:"disbursed_by" json:"disbursedBy,omitempty"`

	// Derived on read.
	Priority       workflow.Priority `db:"-" json:"priority"`
	AllowedActions []workflow.Action `db:"-" json:"allowedActions"`
}

// State returns the workflow state of the request.
func (f *FundRequest) State() workflow.State {
	return workflow.State{Status: f.Status}
}

// FundRequestFilter captures list criteria. Priority is never stored; the store
// classifies with PriorityPolicy when Priority is set.
type FundRequestFilter struct {
	Scope          Scope
	Status         *workflow.Status
	Priority       *workflow.Priority
	PriorityPolicy workflow.PriorityPolicy
	IssueID        string
	Search         string
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}

// Apply projects a persisted delta onto the in-memory request.
func (f *FundRequest) Apply(d workflow.Delta, at time.Time) {
	f.Status = d.To.Status
	f.Version++
	f.UpdatedAt = at
	for field, value := range d.Fields {
		switch field {
		case workflow.FieldTDORecommendedAt:
			f.TDORecommendedAt = timeField(value)
		case workflow.FieldTDORecommendedBy:
			f.TDORecommendedBy = stringField(value)
		case workflow.FieldTDOComment:
			f.TDOComment = stringField(value)
		case workflow.FieldApprovedAt:
			f.ApprovedAt = timeField(value)
		case workflow.FieldApprovedBy:
			f.ApprovedBy = stringField(value)
		case workflow.FieldDDOComment:
			f.DDOComment = stringField(value)
		case workflow.FieldRejectedAt:
			f.RejectedAt = timeField(value)
		case workflow.FieldRejectedBy:
			f.RejectedBy = stringField(value)
		case workflow.FieldRejectionReason:
			f.RejectionReason = stringField(value)
		case workflow.FieldDisbursedAt:
			f.DisbursedAt = timeField(value)
		case workflow.FieldDisbursedBy:
			f.DisbursedBy = stringField(value)
		}
	}
}

// Decorate fills the derived priority and the actions available to role.
func (f *FundRequest) Decorate(role UserRole, policy workflow.PriorityPolicy) {
	f.Priority = policy.Classify(f.Amount, f.Purpose)
	f.AllowedActions = workflow.Allowed(workflow.EntityFundRequest, f.State(), role.Workflow())
	if f.AllowedActions == nil {
		f.AllowedActions = []workflow.Action{}
	}
}
