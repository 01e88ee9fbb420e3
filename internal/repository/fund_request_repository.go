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

const fundRequestColumns = `id, issue_id, amount, purpose, status, requester_id, district_id, taluk_id, panchayat_id, village_id, version, created_at, updated_at, tdo_recommended_at, tdo_recommended_by, tdo_comment, approved_at, approved_by, ddo_comment, rejected_at, rejected_by, rejection_reason, disbursed_at, disbursed_by`

// FundRequestRepository persists fund requests.
type FundRequestRepository struct {
	db *sqlx.DB
}

// NewFundRequestRepository constructs the repository.
func NewFundRequestRepository(db *sqlx.DB) *FundRequestRepository {
	return &FundRequestRepository{db: db}
}

// Create inserts the request with its creation event and audit entry.
func (r *FundRequestRepository) Create(ctx context.Context, fr *models.FundRequest, requesterRole models.UserRole, audit *models.AuditLog) (err error) {
	if fr.ID == "" {
		fr.ID = uuid.NewString()
	}
	if fr.Version == 0 {
		fr.Version = 1
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create fund request: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO fund_requests (id, issue_id, amount, purpose, status, requester_id, district_id, taluk_id, panchayat_id, village_id, version, created_at, updated_at)
VALUES (:id, :issue_id, :amount, :purpose, :status, :requester_id, :district_id, :taluk_id, :panchayat_id, :village_id, :version, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, fr); err != nil {
		return fmt.Errorf("create fund request: %w", err)
	}
	if err = insertEvent(ctx, tx, creationEvent(workflow.EntityFundRequest, fr.ID, fr.Status, fr.RequesterID, requesterRole, fr.CreatedAt)); err != nil {
		return err
	}
	if audit != nil {
		if err = insertAuditLog(ctx, tx, audit); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create fund request: %w", err)
	}
	return nil
}

// FindByID returns a fund request by identifier.
func (r *FundRequestRepository) FindByID(ctx context.Context, id string) (*models.FundRequest, error) {
	query := `SELECT ` + fundRequestColumns + ` FROM fund_requests WHERE id = $1`
	var fr models.FundRequest
	if err := r.db.GetContext(ctx, &fr, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find fund request: %w", err)
	}
	return &fr, nil
}

// ApplyTransition persists a workflow delta guarded by the expected version.
func (r *FundRequestRepository) ApplyTransition(ctx context.Context, rec TransitionRecord) error {
	return applyTransition(ctx, r.db, fundTarget, rec)
}

func fundRequestWhere(filter models.FundRequestFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	var scope string
	scope, args = scopeCondition(filter.Scope, "requester_id", args)
	if scope != "" {
		conditions = append(conditions, scope)
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.IssueID != "" {
		args = append(args, filter.IssueID)
		conditions = append(conditions, fmt.Sprintf("issue_id = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, containsPattern(filter.Search))
		conditions = append(conditions, fmt.Sprintf(`LOWER(purpose) LIKE $%d ESCAPE '\'`, len(args)))
	}

	if filter.Priority != nil {
		var expr string
		expr, args = priorityExpr(filter.PriorityPolicy, args)
		args = append(args, string(*filter.Priority))
		conditions = append(conditions, fmt.Sprintf("(%s) = $%d", expr, len(args)))
	}

	where := "WHERE 1=1"
	if len(conditions) > 0 {
		where += " AND " + strings.Join(conditions, " AND ")
	}
	return where, args
}

// priorityExpr renders policy as a CASE yielding 'high', 'medium' or 'low', in the
// same order as workflow.PriorityPolicy.Classify: keywords first, then amount tiers.
func priorityExpr(policy workflow.PriorityPolicy, args []interface{}) (string, []interface{}) {
	n := policy.Normalized()
	var b strings.Builder
	b.WriteString("CASE")
	if len(n.Keywords) > 0 {
		matches := make([]string, 0, len(n.Keywords))
		for _, kw := range n.Keywords {
			args = append(args, containsPattern(kw))
			matches = append(matches, fmt.Sprintf(`LOWER(purpose) LIKE $%d ESCAPE '\'`, len(args)))
		}
		fmt.Fprintf(&b, " WHEN %s THEN 'high'", strings.Join(matches, " OR "))
	}
	args = append(args, n.HighAmount)
	fmt.Fprintf(&b, " WHEN amount >= $%d THEN 'high'", len(args))
	args = append(args, n.MediumAmount)
	fmt.Fprintf(&b, " WHEN amount >= $%d THEN 'medium' ELSE 'low' END", len(args))
	return b.String(), args
}

// List returns fund requests visible in the filter's scope with a total count.
func (r *FundRequestRepository) List(ctx context.Context, filter models.FundRequestFilter) ([]models.FundRequest, int, error) {
	where, args := fundRequestWhere(filter)

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{"created_at": true, "updated_at": true, "status": true, "amount": true}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}
	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}
	page, pageSize := normalizePage(filter.Page, filter.PageSize)

	listQuery := fmt.Sprintf("SELECT %s FROM fund_requests %s ORDER BY %s %s LIMIT %d OFFSET %d", fundRequestColumns, where, sortBy, sortOrder, pageSize, (page-1)*pageSize)
	var requests []models.FundRequest
	if err := r.db.SelectContext(ctx, &requests, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list fund requests: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM fund_requests "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count fund requests: %w", err)
	}
	return requests, total, nil
}

// Export returns up to limit requests for reports, oldest first.
func (r *FundRequestRepository) Export(ctx context.Context, filter models.FundRequestFilter, from, to *time.Time, limit int) ([]models.FundRequest, error) {
	where, args := fundRequestWhere(filter)
	if from != nil {
		args = append(args, *from)
		where += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		where += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	query := fmt.Sprintf("SELECT %s FROM fund_requests %s ORDER BY created_at ASC LIMIT %d", fundRequestColumns, where, limit)
	var requests []models.FundRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, fmt.Errorf("export fund requests: %w", err)
	}
	return requests, nil
}

// TotalsByStatus returns count and summed amount per status in the scope.
func (r *FundRequestRepository) TotalsByStatus(ctx context.Context, scope models.Scope) ([]dto.FundStatusTotal, error) {
	where, args := fundRequestWhere(models.FundRequestFilter{Scope: scope})
	query := fmt.Sprintf("SELECT status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount FROM fund_requests %s GROUP BY status ORDER BY status", where)
	var rows []dto.FundStatusTotal
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("fund request totals: %w", err)
	}
	return rows, nil
}

// CountOpenByPriority counts non-terminal requests in scope grouped by derived priority.
func (r *FundRequestRepository) CountOpenByPriority(ctx context.Context, scope models.Scope, policy workflow.PriorityPolicy) ([]dto.CountByKey, error) {
	where, args := fundRequestWhere(models.FundRequestFilter{Scope: scope})
	var open []string
	for _, status := range workflow.Statuses(workflow.EntityFundRequest) {
		if !workflow.Terminal(workflow.EntityFundRequest, status) {
			args = append(args, status)
			open = append(open, fmt.Sprintf("$%d", len(args)))
		}
	}
	where += " AND status IN (" + strings.Join(open, ", ") + ")"

	var expr string
	expr, args = priorityExpr(policy, args)
	query := fmt.Sprintf("SELECT %s AS key, COUNT(*) AS count FROM fund_requests %s GROUP BY 1", expr, where)
	var rows []dto.CountByKey
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("fund request priority counts: %w", err)
	}
	return rows, nil
}
