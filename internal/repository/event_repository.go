package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/civic-portal-api/internal/models"
	"github.com/noah-isme/civic-portal-api/internal/workflow"
)

// EventRepository reads workflow timelines.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository constructs the repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Timeline returns the events of one record, oldest first.
func (r *EventRepository) Timeline(ctx context.Context, entity workflow.Entity, id string) ([]models.WorkflowEvent, error) {
	const query = `SELECT id, entity_type, entity_id, action, from_status, to_status, escalation_level, actor_id, actor_role, note, created_at
FROM workflow_events WHERE entity_type = $1 AND entity_id = $2 ORDER BY created_at ASC, id ASC`
	events := make([]models.WorkflowEvent, 0)
	if err := r.db.SelectContext(ctx, &events, query, entity, id); err != nil {
		return nil, fmt.Errorf("list workflow events: %w", err)
	}
	return events, nil
}

// Recorded reports whether the timeline event with id exists.
func (r *EventRepository) Recorded(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM workflow_events WHERE id = $1)`, id); err != nil {
		return false, fmt.Errorf("lookup workflow event: %w", err)
	}
	return exists, nil
}
