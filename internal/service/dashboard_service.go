package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/civic-portal-api/internal/dto"
	"github.com/noah-isme/civic-portal-api/internal/models"
	"github.com/noah-isme/civic-portal-api/internal/workflow"
	"github.com/noah-isme/civic-portal-api/pkg/chart"
	"github.com/noah-isme/civic-portal-api/pkg/database"
)

type issueAggregates interface {
	CountByStatus(ctx context.Context, scope models.Scope) ([]dto.CountByKey, error)
	CountByCategory(ctx context.Context, scope models.Scope) ([]dto.CountByKey, error)
	CountEscalatedAndOverdue(ctx context.Context, scope models.Scope, overdueBefore time.Time) (int, int, error)
	Recent(ctx context.Context, scope models.Scope, limit int) ([]models.Issue, error)
}

type fundAggregates interface {
	TotalsByStatus(ctx context.Context, scope models.Scope) ([]dto.FundStatusTotal, error)
	CountOpenByPriority(ctx context.Context, scope models.Scope, policy workflow.PriorityPolicy) ([]dto.CountByKey, error)
}

type pendingCounter interface {
	CountPendingVerification(ctx context.Context) (int, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL    time.Duration
	RecentLimit int
	IssueSLA    time.Duration
	Retry       database.RetryPolicy
	Priority    workflow.PriorityPolicy
}

// DashboardService aggregates the records visible to an actor.
type DashboardService struct {
	issues issueAggregates
	funds  fundAggregates
	users  pendingCounter
	cache  *CacheService
	logger *zap.Logger
	now    func() time.Time
	cfg    DashboardServiceConfig
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Issues issueAggregates
	Funds  fundAggregates
	Users  pendingCounter
	Cache  *CacheService
	Logger *zap.Logger
	Config DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 5
	}
	if cfg.IssueSLA <= 0 {
		cfg.IssueSLA = 72 * time.Hour
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 1
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		issues: params.Issues,
		funds:  params.Funds,
		users:  params.Users,
		cache:  params.Cache,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		cfg:    cfg,
	}
}

// Summary returns the dashboard for actor and whether it came from the cache.
func (s *DashboardService) Summary(ctx context.Context, actor Actor) (*dto.DashboardResponse, bool, error) {
	key := DashboardKey(actor.Role, actor.Scope)
	summary, hit, err := cached(ctx, s.cache, key, s.cfg.CacheTTL, func(ctx context.Context) (*dto.DashboardResponse, error) {
		return s.compose(ctx, actor)
	})
	if err != nil {
		return nil, false, err
	}
	if hit {
		// Overdue flags age while cached.
		now := s.now()
		for i := range summary.Recent {
			summary.Recent[i].Decorate(actor.Role, now, s.cfg.IssueSLA)
		}
	}
	return summary, hit, nil
}

// IssueChartSVG renders the status distribution of visible issues as a donut chart.
func (s *DashboardService) IssueChartSVG(ctx context.Context, actor Actor, lang string) ([]byte, error) {
	summary, _, err := s.Summary(ctx, actor)
	if err != nil {
		return nil, err
	}
	data := make([]chart.Datum, 0, len(summary.Issues.StatusChart))
	for _, slice := range summary.Issues.StatusChart {
		label := workflow.Describe(workflow.EntityIssue, workflow.Status(slice.Label), lang)
		data = append(data, chart.Datum{Label: label.Label, Value: slice.Value, Color: label.Color})
	}
	return chart.SVG(data, chart.Options{Title: "Issues by status"}), nil
}

func (s *DashboardService) compose(ctx context.Context, actor Actor) (*dto.DashboardResponse, error) {
	scope := actor.Scope
	now := s.now()
	resp := &dto.DashboardResponse{
		Scope:       scope.Key(),
		GeneratedAt: now,
		Issues: dto.IssueStats{
			ByStatus:   map[string]int{},
			ByCategory: map[string]int{},
		},
		Funds: dto.FundStats{
			ByStatus:   []dto.FundStatusTotal{},
			ByPriority: map[string]int{},
		},
	}

	var (
		byStatus   []dto.CountByKey
		byCategory []dto.CountByKey
	)
	err := s.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		if byStatus, err = s.issues.CountByStatus(ctx, scope); err != nil {
			return err
		}
		if byCategory, err = s.issues.CountByCategory(ctx, scope); err != nil {
			return err
		}
		resp.Issues.Escalated, resp.Issues.Overdue, err = s.issues.CountEscalatedAndOverdue(ctx, scope, now.Add(-s.cfg.IssueSLA))
		if err != nil {
			return err
		}
		resp.Recent, err = s.issues.Recent(ctx, scope, s.cfg.RecentLimit)
		return err
	})
	if err != nil {
		return nil, loadError(err, "issue statistics")
	}

	for _, row := range byStatus {
		resp.Issues.ByStatus[row.Key] = row.Count
		resp.Issues.Total += row.Count
	}
	for _, row := range byCategory {
		resp.Issues.ByCategory[row.Key] = row.Count
	}
	resp.Issues.StatusChart = statusChart(resp.Issues.ByStatus)
	if resp.Recent == nil {
		resp.Recent = []models.Issue{}
	}
	for i := range resp.Recent {
		resp.Recent[i].Decorate(actor.Role, now, s.cfg.IssueSLA)
	}

	if s.funds != nil {
		if err := s.composeFunds(ctx, scope, &resp.Funds); err != nil {
			return nil, err
		}
	}

	if actor.Role == models.RoleAdmin && s.users != nil {
		pending, err := s.users.CountPendingVerification(ctx)
		if err != nil {
			s.logger.Warn("pending verification count failed", zap.Error(err))
		} else {
			resp.PendingVerifications = &pending
		}
	}
	return resp, nil
}

func (s *DashboardService) composeFunds(ctx context.Context, scope models.Scope, stats *dto.FundStats) error {
	var (
		totals     []dto.FundStatusTotal
		byPriority []dto.CountByKey
	)
	err := s.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		if totals, err = s.funds.TotalsByStatus(ctx, scope); err != nil {
			return err
		}
		byPriority, err = s.funds.CountOpenByPriority(ctx, scope, s.cfg.Priority)
		return err
	})
	if err != nil {
		return loadError(err, "fund statistics")
	}
	for _, t := range totals {
		stats.Total += t.Count
		stats.TotalAmount += t.Amount
	}
	if totals != nil {
		stats.ByStatus = totals
	}
	for _, row := range byPriority {
		stats.ByPriority[row.Key] = row.Count
	}
	return nil
}

// statusChart orders the counts by the workflow's status order and computes pie slices.
func statusChart(counts map[string]int) []chart.Slice {
	data := make([]chart.Datum, 0, len(counts))
	for _, info := range workflow.Catalog(workflow.EntityIssue) {
		if n := counts[string(info.Status)]; n > 0 {
			data = append(data, chart.Datum{Label: string(info.Status), Value: float64(n), Color: info.Color})
		}
	}
	slices := chart.Slices(data)
	if slices == nil {
		return []chart.Slice{}
	}
	return slices
}
