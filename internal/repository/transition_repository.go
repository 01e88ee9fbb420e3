package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/civic-portal-api/internal/models"
	"github.com/noah-isme/civic-portal-api/internal/workflow"
	"github.com/noah-isme/civic-portal-api/pkg/database"
)

// ErrVersionConflict reports a conditional update that matched no row: the record
// changed (or vanished) after it was read.
var ErrVersionConflict = errors.New("version conflict")

// TransitionRecord is everything persisted for one applied workflow delta.
// EventID, when set, becomes the timeline event id so a caller can look the
// event up after an ambiguous commit.
type TransitionRecord struct {
	EventID         string
	EntityID        string
	ExpectedVersion int
	Delta           workflow.Delta
	ActorID         string
	ActorRole       models.UserRole
	Note            string
	At              time.Time
	Audit           *models.AuditLog
}

var issueFieldColumns = map[workflow.Field]string{
	workflow.FieldVerifiedAt:       "verified_at",
	workflow.FieldVerifiedBy:       "verified_by",
	workflow.FieldAssignedAt:       "assigned_at",
	workflow.FieldAssignedBy:       "assigned_by",
	workflow.FieldAssignedWorkerID: "assigned_worker_id",
	workflow.FieldInProgressAt:     "in_progress_at",
	workflow.FieldEscalatedAt:      "escalated_at",
	workflow.FieldEscalatedBy:      "escalated_by",
	workflow.FieldResolvedAt:       "resolved_at",
	workflow.FieldResolvedBy:       "resolved_by",
	workflow.FieldResolutionNote:   "resolution_note",
	workflow.FieldClosedAt:         "closed_at",
	workflow.FieldClosedBy:         "closed_by",
	workflow.FieldCloseReason:      "close_reason",
}

var fundFieldColumns = map[workflow.Field]string{
	workflow.FieldTDORecommendedAt: "tdo_recommended_at",
	workflow.FieldTDORecommendedBy: "tdo_recommended_by",
	workflow.FieldTDOComment:       "tdo_comment",
	workflow.FieldApprovedAt:       "approved_at",
	workflow.FieldApprovedBy:       "approved_by",
	workflow.FieldDDOComment:       "ddo_comment",
	workflow.FieldRejectedAt:       "rejected_at",
	workflow.FieldRejectedBy:       "rejected_by",
	workflow.FieldRejectionReason:  "rejection_reason",
	workflow.FieldDisbursedAt:      "disbursed_at",
	workflow.FieldDisbursedBy:      "disbursed_by",
}

type transitionTarget struct {
	table         string
	columns       map[workflow.Field]string
	hasEscalation bool
}

var (
	issueTarget = transitionTarget{table: "issues", columns: issueFieldColumns, hasEscalation: true}
	fundTarget  = transitionTarget{table: "fund_requests", columns: fundFieldColumns}
)

// buildTransitionUpdate renders the conditional update for a delta. Columns are emitted in
// sorted order so the statement text is stable.
func buildTransitionUpdate(target transitionTarget, rec TransitionRecord) (string, []interface{}, error) {
	sets := []string{"status = $1"}
	args := []interface{}{rec.Delta.To.Status}
	if target.hasEscalation {
		args = append(args, rec.Delta.To.EscalationLevel)
		sets = append(sets, fmt.Sprintf("escalation_level = $%d", len(args)))
	}
	args = append(args, rec.At)
	sets = append(sets, "version = version + 1", fmt.Sprintf("updated_at = $%d", len(args)))

	fields := make([]string, 0, len(rec.Delta.Fields))
	for field := range rec.Delta.Fields {
		if field == workflow.FieldEscalationLevel {
			continue
		}
		if _, ok := target.columns[field]; !ok {
			return "", nil, fmt.Errorf("no %s column for field %q", target.table, field)
		}
		fields = append(fields, string(field))
	}
	sort.Strings(fields)
	for _, name := range fields {
		field := workflow.Field(name)
		args = append(args, rec.Delta.Fields[field])
		sets = append(sets, fmt.Sprintf("%s = $%d", target.columns[field], len(args)))
	}

	args = append(args, rec.EntityID, rec.ExpectedVersion)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d AND version = $%d",
		target.table, strings.Join(sets, ", "), len(args)-1, len(args))
	return query, args, nil
}

// applyTransition writes the delta, its timeline event and optional audit entry in one transaction.
func applyTransition(ctx context.Context, db *sqlx.DB, target transitionTarget, rec TransitionRecord) (err error) {
	query, args, err := buildTransitionUpdate(target, rec)
	if err != nil {
		return err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s transition: %w", target.table, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s status: %w", target.table, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s rows: %w", target.table, err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}

	event := eventFromRecord(rec)
	if err = insertEvent(ctx, tx, event); err != nil {
		return err
	}
	if rec.Audit != nil {
		if err = insertAuditLog(ctx, tx, rec.Audit); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s transition: %w", target.table, database.CommitError(err))
	}
	return nil
}

func eventFromRecord(rec TransitionRecord) *models.WorkflowEvent {
	id := rec.EventID
	if id == "" {
		id = uuid.NewString()
	}
	event := &models.WorkflowEvent{
		ID:              id,
		EntityType:      rec.Delta.Entity,
		EntityID:        rec.EntityID,
		Action:          rec.Delta.Action,
		FromStatus:      rec.Delta.From.Status,
		ToStatus:        rec.Delta.To.Status,
		EscalationLevel: rec.Delta.To.EscalationLevel,
		ActorID:         rec.ActorID,
		ActorRole:       rec.ActorRole,
		CreatedAt:       rec.At,
	}
	if rec.Note != "" {
		note := rec.Note
		event.Note = &note
	}
	return event
}

func insertEvent(ctx context.Context, exec sqlx.ExtContext, event *models.WorkflowEvent) error {
	const query = `INSERT INTO workflow_events (id, entity_type, entity_id, action, from_status, to_status, escalation_level, actor_id, actor_role, note, created_at)
VALUES (:id, :entity_type, :entity_id, :action, :from_status, :to_status, :escalation_level, :actor_id, :actor_role, :note, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, event); err != nil {
		return fmt.Errorf("insert workflow event: %w", err)
	}
	return nil
}

// scopeCondition renders the visibility predicate for scope. ownerColumn holds the creator id.
func scopeCondition(scope models.Scope, ownerColumn string, args []interface{}) (string, []interface{}) {
	var column, value string
	switch scope.Level {
	case models.ScopeAll:
		return "", args
	case models.ScopeDistrict:
		column, value = "district_id", scope.DistrictID
	case models.ScopeTaluk:
		column, value = "taluk_id", scope.TalukID
	case models.ScopePanchayat:
		column, value = "panchayat_id", scope.PanchayatID
	case models.ScopeVillage:
		column, value = "village_id", scope.VillageID
	default:
		column, value = ownerColumn, scope.UserID
	}
	if value == "" {
		return "1=0", args
	}
	args = append(args, value)
	return fmt.Sprintf("%s = $%d", column, len(args)), args
}
