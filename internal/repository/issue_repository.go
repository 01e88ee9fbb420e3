package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/civic-portal-api/internal/dto"
	"github.com/noah-isme/civic-portal-api/internal/models"
	"github.com/noah-isme/civic-portal-api/internal/workflow"
)

const issueColumns = `id, title, description, category, status, escalation_level, reporter_id, assigned_worker_id, location, latitude, longitude, district_id, taluk_id, panchayat_id, village_id, version, created_at, updated_at, verified_at, verified_by, assigned_at, assigned_by, in_progress_at, escalated_at, escalated_by, resolved_at, resolved_by, resolution_note, closed_at, closed_by, close_reason`

// IssueRepository persists issues.
type IssueRepository struct {
	db *sqlx.DB
}

// NewIssueRepository constructs the repository.
func NewIssueRepository(db *sqlx.DB) *IssueRepository {
	return &IssueRepository{db: db}
}

// Create inserts the issue together with its creation event and audit entry.
func (r *IssueRepository) Create(ctx context.Context, issue *models.Issue, reporterRole models.UserRole, audit *models.AuditLog) (err error) {
	if issue.ID == "" {
		issue.ID = uuid.NewString()
	}
	if issue.Version == 0 {
		issue.Version = 1
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create issue: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO issues (id, title, description, category, status, escalation_level, reporter_id, location, latitude, longitude, district_id, taluk_id, panchayat_id, village_id, version, created_at, updated_at)
VALUES (:id, :title, :description, :category, :status, :escalation_level, :reporter_id, :location, :latitude, :longitude, :district_id, :taluk_id, :panchayat_id, :village_id, :version, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, issue); err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	if err = insertEvent(ctx, tx, creationEvent(workflow.EntityIssue, issue.ID, issue.Status, issue.ReporterID, reporterRole, issue.CreatedAt)); err != nil {
		return err
	}
	if audit != nil {
		if err = insertAuditLog(ctx, tx, audit); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create issue: %w", err)
	}
	return nil
}

// FindByID returns an issue by identifier.
func (r *IssueRepository) FindByID(ctx context.Context, id string) (*models.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE id = $1`
	var issue models.Issue
	if err := r.db.GetContext(ctx, &issue, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find issue: %w", err)
	}
	return &issue, nil
}

// ApplyTransition persists a workflow delta guarded by the expected version.
func (r *IssueRepository) ApplyTransition(ctx context.Context, rec TransitionRecord) error {
	return applyTransition(ctx, r.db, issueTarget, rec)
}

func issueWhere(filter models.IssueFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	var scope string
	scope, args = scopeCondition(filter.Scope, "reporter_id", args)
	if scope != "" {
		conditions = append(conditions, scope)
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.EscalationLevel != nil {
		args = append(args, *filter.EscalationLevel)
		conditions = append(conditions, fmt.Sprintf("escalation_level = $%d AND status NOT IN ('resolved', 'closed')", len(args)))
	}
	if filter.Category != nil {
		args = append(args, *filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, containsPattern(filter.Search))
		conditions = append(conditions, fmt.Sprintf(`(LOWER(title) LIKE $%[1]d ESCAPE '\' OR LOWER(description) LIKE $%[1]d ESCAPE '\')`, len(args)))
	}
	if filter.Escalated {
		conditions = append(conditions, "escalation_level > 0")
	}
	if filter.OverdueBefore != nil {
		args = append(args, *filter.OverdueBefore)
		conditions = append(conditions, fmt.Sprintf("status NOT IN ('resolved', 'closed') AND created_at < $%d", len(args)))
	}

	where := "WHERE 1=1"
	if len(conditions) > 0 {
		where += " AND " + strings.Join(conditions, " AND ")
	}
	return where, args
}

// List returns issues visible in the filter's scope with a total count.
func (r *IssueRepository) List(ctx context.Context, filter models.IssueFilter) ([]models.Issue, int, error) {
	where, args := issueWhere(filter)

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{"created_at": true, "updated_at": true, "status": true}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}
	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}
	page, pageSize := normalizePage(filter.Page, filter.PageSize)

	listQuery := fmt.Sprintf("SELECT %s FROM issues %s ORDER BY %s %s LIMIT %d OFFSET %d", issueColumns, where, sortBy, sortOrder, pageSize, (page-1)*pageSize)
	var issues []models.Issue
	if err := r.db.SelectContext(ctx, &issues, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list issues: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM issues "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count issues: %w", err)
	}
	return issues, total, nil
}

// displayStatusExpr folds the escalation level into open statuses, matching workflow.DisplayStatus.
const displayStatusExpr = `CASE
WHEN status IN ('resolved', 'closed') THEN status
WHEN escalation_level >= 2 THEN 'escalated_to_ddo'
WHEN escalation_level = 1 THEN 'escalated_to_tdo'
ELSE status END`

// CountByStatus groups visible issues by display status.
func (r *IssueRepository) CountByStatus(ctx context.Context, scope models.Scope) ([]dto.CountByKey, error) {
	return r.countBy(ctx, scope, displayStatusExpr)
}

// CountByCategory groups visible issues by category.
func (r *IssueRepository) CountByCategory(ctx context.Context, scope models.Scope) ([]dto.CountByKey, error) {
	return r.countBy(ctx, scope, "category")
}

func (r *IssueRepository) countBy(ctx context.Context, scope models.Scope, column string) ([]dto.CountByKey, error) {
	where, args := issueWhere(models.IssueFilter{Scope: scope})
	query := fmt.Sprintf("SELECT %s AS key, COUNT(*) AS count FROM issues %s GROUP BY 1 ORDER BY 1", column, where)
	var rows []dto.CountByKey
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("group issues: %w", err)
	}
	return rows, nil
}

// CountEscalatedAndOverdue returns open escalated issues and open issues created before overdueBefore.
func (r *IssueRepository) CountEscalatedAndOverdue(ctx context.Context, scope models.Scope, overdueBefore time.Time) (int, int, error) {
	where, args := issueWhere(models.IssueFilter{Scope: scope})
	args = append(args, overdueBefore)
	query := fmt.Sprintf(`SELECT
COALESCE(SUM(CASE WHEN escalation_level > 0 AND status NOT IN ('resolved', 'closed') THEN 1 ELSE 0 END), 0) AS escalated,
COALESCE(SUM(CASE WHEN status NOT IN ('resolved', 'closed') AND created_at < $%d THEN 1 ELSE 0 END), 0) AS overdue
FROM issues %s`, len(args), where)

	var row struct {
		Escalated int `db:"escalated"`
		Overdue   int `db:"overdue"`
	}
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		return 0, 0, fmt.Errorf("count escalated issues: %w", err)
	}
	return row.Escalated, row.Overdue, nil
}

// Recent returns the latest visible issues.
func (r *IssueRepository) Recent(ctx context.Context, scope models.Scope, limit int) ([]models.Issue, error) {
	issues, _, err := r.List(ctx, models.IssueFilter{Scope: scope, PageSize: limit, SortBy: "created_at", SortOrder: "DESC"})
	return issues, err
}

// Export streams up to limit issues for reports, oldest first.
func (r *IssueRepository) Export(ctx context.Context, filter models.IssueFilter, from, to *time.Time, limit int) ([]models.Issue, error) {
	where, args := issueWhere(filter)
	if from != nil {
		args = append(args, *from)
		where += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		where += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	query := fmt.Sprintf("SELECT %s FROM issues %s ORDER BY created_at ASC LIMIT %d", issueColumns, where, limit)
	var issues []models.Issue
	if err := r.db.SelectContext(ctx, &issues, query, args...); err != nil {
		return nil, fmt.Errorf("export issues: %w", err)
	}
	return issues, nil
}

func creationEvent(entity workflow.Entity, id string, status workflow.Status, actorID string, role models.UserRole, at time.Time) *models.WorkflowEvent {
	return &models.WorkflowEvent{
		ID:         uuid.NewString(),
		EntityType: entity,
		EntityID:   id,
		Action:     models.EventActionCreate,
		ToStatus:   status,
		ActorID:    actorID,
		ActorRole:  role,
		CreatedAt:  at,
	}
}
