package models

import (
	"time"

	"github.com/noah-isme/civic-portal-api/internal/workflow"
)

// WorkflowEvent is one entry in a record's timeline.
type WorkflowEvent struct {
	ID              string          `db:"id" json:"id"`
	EntityType      workflow.Entity `db:"entity_type" json:"entityType"`
	EntityID        string          `db:"entity_id" json:"entityId"`
	Action          workflow.Action `db:"action" json:"action"`
	FromStatus      workflow.Status `db:"from_status" json:"fromStatus"`
	ToStatus        workflow.Status `db:"to_status" json:"toStatus"`
	EscalationLevel int             `db:"escalation_level" json:"escalationLevel"`
	ActorID         string          `db:"actor_id" json:"actorId"`
	ActorRole       UserRole        `db:"actor_role" json:"actorRole"`
	Note            *string         `db:"note" json:"note,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
}

// EventActionCreate marks the first timeline entry of a record.
const EventActionCreate workflow.Action = "create"
