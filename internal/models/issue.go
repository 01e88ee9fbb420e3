package models

import (
	"time"

	"github.com/noah-isme/civic-portal-api/internal/workflow"
)

// IssueCategory classifies a reported issue.
type IssueCategory string

const (
	IssueCategoryRoad        IssueCategory = "ROAD"
	IssueCategoryWater       IssueCategory = "WATER"
	IssueCategorySanitation  IssueCategory = "SANITATION"
	IssueCategoryElectricity IssueCategory = "ELECTRICITY"
	IssueCategoryHealth      IssueCategory = "HEALTH"
	IssueCategoryEducation   IssueCategory = "EDUCATION"
	IssueCategoryOther       IssueCategory = "OTHER"
)

// IssueCategories lists the categories in display order.
var IssueCategories = []IssueCategory{
	IssueCategoryRoad, IssueCategoryWater, IssueCategorySanitation, IssueCategoryElectricity,
	IssueCategoryHealth, IssueCategoryEducation, IssueCategoryOther,
}

// Issue is a civic problem reported by a villager.
type Issue struct {
	ID               string          `db:"id" json:"id"`
	Title            string          `db:"title" json:"title"`
	Description      string          `db:"description" json:"description"`
	Category         IssueCategory   `db:"category" json:"category"`
	Status           workflow.Status `db:"status" json:"status"`
	EscalationLevel  int             `db:"escalation_level" json:"escalationLevel"`
	ReporterID       string          `db:"reporter_id" json:"reporterId"`
	AssignedWorkerID *string         `db:"assigned_worker_id" json:"assignedWorkerId,omitempty"`
	Location         string          `db:"location" json:"location"`
	Latitude         *float64        `db:"latitude" json:"latitude,omitempty"`
	Longitude        *float64        `db:"longitude" json:"longitude,omitempty"`
	Jurisdiction
	Version   int       `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`

	VerifiedAt     *time.Time `db:"verified_at" json:"verifiedAt,omitempty"`
	VerifiedBy     *string    `db:"verified_by" json:"verifiedBy,omitempty"`
	AssignedAt     *time.Time `db:"assigned_at" json:"assignedAt,omitempty"`
	AssignedBy     *string    `db:"assigned_by" json:"assignedBy,omitempty"`
	InProgressAt   *time.Time `db:"in_progress_at" json:"inProgressAt,omitempty"`
	EscalatedAt    *time.Time `db:"escalated_at" json:"escalatedAt,omitempty"`
	EscalatedBy    *string    `db:"escalated_by" json:"escalatedBy,omitempty"`
	ResolvedAt     *time.Time `db:"resolved_at" json:"resolvedAt,omitempty"`
	ResolvedBy     *string    `db:"resolved_by" json:"resolvedBy,omitempty"`
	ResolutionNote *string    `db:"resolution_note" json:"resolutionNote,omitempty"`
	ClosedAt       *time.Time `db:"closed_at" json:"closedAt,omitempty"`
	ClosedBy       *string    `db:"closed_by" json:"closedBy,omitempty"`
	CloseReason    *string    `db:"close_reason" json:"closeReason,omitempty"`

	// Derived on read.
	DisplayStatus  workflow.Status   `db:"-" json:"displayStatus"`
	Overdue        bool              `db:"-" json:"overdue"`
	AllowedActions []workflow.Action `db:"-" json:"allowedActions"`
}

// State returns the workflow state of the issue.
func (i *Issue) State() workflow.State {
	return workflow.State{Status: i.Status, EscalationLevel: i.EscalationLevel}
}

// IsOverdue reports whether a non-terminal issue is older than sla.
func (i *Issue) IsOverdue(now time.Time, sla time.Duration) bool {
	if sla <= 0 || workflow.Terminal(workflow.EntityIssue, i.Status) {
		return false
	}
	return now.Sub(i.CreatedAt) > sla
}

// IssueFilter captures list criteria. Scope is always applied.
// Overdue is resolved into OverdueBefore by the service, which knows the SLA.
type IssueFilter struct {
	Scope           Scope
	Status          *workflow.Status
	EscalationLevel *int
	Category        *IssueCategory
	Search          string
	Escalated       bool
	Overdue         bool
	OverdueBefore   *time.Time
	Page            int
	PageSize        int
	SortBy          string
	SortOrder       string
}

// Apply projects a persisted delta onto the in-memory issue.
func (i *Issue) Apply(d workflow.Delta, at time.Time) {
	i.Status = d.To.Status
	i.EscalationLevel = d.To.EscalationLevel
	i.Version++
	i.UpdatedAt = at
	for field, value := range d.Fields {
		switch field {
		case workflow.FieldVerifiedAt:
			i.VerifiedAt = timeField(value)
		case workflow.FieldVerifiedBy:
			i.VerifiedBy = stringField(value)
		case workflow.FieldAssignedAt:
			i.AssignedAt = timeField(value)
		case workflow.FieldAssignedBy:
			i.AssignedBy = stringField(value)
		case workflow.FieldAssignedWorkerID:
			i.AssignedWorkerID = stringField(value)
		case workflow.FieldInProgressAt:
			i.InProgressAt = timeField(value)
		case workflow.FieldEscalatedAt:
			i.EscalatedAt = timeField(value)
		case workflow.FieldEscalatedBy:
			i.EscalatedBy = stringField(value)
		case workflow.FieldResolvedAt:
			i.ResolvedAt = timeField(value)
		case workflow.FieldResolvedBy:
			i.ResolvedBy = stringField(value)
		case workflow.FieldResolutionNote:
			i.ResolutionNote = stringField(value)
		case workflow.FieldClosedAt:
			i.ClosedAt = timeField(value)
		case workflow.FieldClosedBy:
			i.ClosedBy = stringField(value)
		case workflow.FieldCloseReason:
			i.CloseReason = stringField(value)
		}
	}
}

// Decorate fills the derived fields for the given viewer role.
func (i *Issue) Decorate(role UserRole, now time.Time, sla time.Duration) {
	i.DisplayStatus = workflow.DisplayStatus(workflow.EntityIssue, i.State())
	i.Overdue = i.IsOverdue(now, sla)
	i.AllowedActions = workflow.Allowed(workflow.EntityIssue, i.State(), role.Workflow())
	if i.AllowedActions == nil {
		i.AllowedActions = []workflow.Action{}
	}
}

func timeField(v any) *time.Time {
	if t, ok := v.(time.Time); ok {
		return &t
	}
	return nil
}

func stringField(v any) *string {
	if s, ok := v.(string); ok {
		return &s
	}
	return nil
}
