package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/civic-portal-api/internal/dto"
	"github.com/noah-isme/civic-portal-api/internal/models"
	"github.com/noah-isme/civic-portal-api/internal/workflow"
	appErrors "github.com/noah-isme/civic-portal-api/pkg/errors"
)

type fakeIssueAggregates struct {
	byStatus   []dto.CountByKey
	byCategory []dto.CountByKey
	escalated  int
	overdue    int
	recent     []models.Issue
	err        error
	calls      int
	scopes     []models.Scope
}

func (f *fakeIssueAggregates) CountByStatus(_ context.Context, scope models.Scope) ([]dto.CountByKey, error) {
	f.calls++
	f.scopes = append(f.scopes, scope)
	return f.byStatus, f.err
}

func (f *fakeIssueAggregates) CountByCategory(context.Context, models.Scope) ([]dto.CountByKey, error) {
	return f.byCategory, nil
}

func (f *fakeIssueAggregates) CountEscalatedAndOverdue(context.Context, models.Scope, time.Time) (int, int, error) {
	return f.escalated, f.overdue, nil
}

func (f *fakeIssueAggregates) Recent(context.Context, models.Scope, int) ([]models.Issue, error) {
	return f.recent, nil
}

type fakeFundAggregates struct {
	totals     []dto.FundStatusTotal
	byPriority []dto.CountByKey
	policy     workflow.PriorityPolicy
}

func (f *fakeFundAggregates) TotalsByStatus(context.Context, models.Scope) ([]dto.FundStatusTotal, error) {
	return f.totals, nil
}

func (f *fakeFundAggregates) CountOpenByPriority(_ context.Context, _ models.Scope, policy workflow.PriorityPolicy) ([]dto.CountByKey, error) {
	f.policy = policy
	return f.byPriority, nil
}

type fakePending struct{ n int }

func (f fakePending) CountPendingVerification(context.Context) (int, error) { return f.n, nil }

func newDashboardFixture() (*fakeIssueAggregates, *fakeFundAggregates) {
	issues := &fakeIssueAggregates{
		byStatus: []dto.CountByKey{
			{Key: string(workflow.StatusSubmitted), Count: 10},
			{Key: string(workflow.StatusInProgress), Count: 20},
			{Key: string(workflow.StatusEscalatedToTDO), Count: 30},
			{Key: string(workflow.StatusResolved), Count: 40},
		},
		byCategory: []dto.CountByKey{{Key: "ROAD", Count: 60}, {Key: "WATER", Count: 40}},
		escalated:  30,
		overdue:    4,
		recent:     []models.Issue{seededIssue(workflow.StatusSubmitted, 0)},
	}
	funds := &fakeFundAggregates{
		totals: []dto.FundStatusTotal{
			{Status: "pending", Count: 2, Amount: 150000},
			{Status: "disbursed", Count: 1, Amount: 5000},
		},
		byPriority: []dto.CountByKey{{Key: string(workflow.PriorityHigh), Count: 2}},
	}
	return issues, funds
}

func TestDashboardServiceSummaryComposesAndCaches(t *testing.T) {
	issues, funds := newDashboardFixture()
	cache := newMemCache()
	svc := NewDashboardService(DashboardServiceParams{
		Issues: issues,
		Funds:  funds,
		Users:  fakePending{n: 3},
		Cache:  NewCacheService(cache, nil, time.Minute, zap.NewNop(), true),
		Logger: zap.NewNop(),
	})

	summary, hit, err := svc.Summary(context.Background(), pdoA)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "panchayat:P1", summary.Scope)
	assert.Equal(t, 100, summary.Issues.Total)
	assert.Equal(t, 30, summary.Issues.ByStatus[string(workflow.StatusEscalatedToTDO)])
	assert.Equal(t, 30, summary.Issues.Escalated)
	assert.Equal(t, 4, summary.Issues.Overdue)
	assert.Nil(t, summary.PendingVerifications)

	require.Len(t, summary.Issues.StatusChart, 4)
	labels := []int{}
	for _, slice := range summary.Issues.StatusChart {
		labels = append(labels, slice.PercentLabel)
	}
	assert.Equal(t, []int{10, 20, 30, 40}, labels)
	assert.InDelta(t, 2*3.141592653589793, summary.Issues.StatusChart[3].EndAngle, 1e-9)

	assert.Equal(t, 3, summary.Funds.Total)
	assert.Equal(t, 155000.0, summary.Funds.TotalAmount)
	assert.Equal(t, 2, summary.Funds.ByPriority[string(workflow.PriorityHigh)])
	assert.Zero(t, summary.Funds.ByPriority[string(workflow.PriorityLow)])

	require.Len(t, summary.Recent, 1)
	assert.Equal(t, []workflow.Action{}, summary.Recent[0].AllowedActions)

	again, hit, err := svc.Summary(context.Background(), pdoA)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, summary.Issues.Total, again.Issues.Total)
	assert.Equal(t, 1, issues.calls)

	cache.DeleteByPattern(context.Background(), "dash:*")
	_, hit, err = svc.Summary(context.Background(), pdoA)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, issues.calls)
}

func TestDashboardServiceAdminSeesPendingVerifications(t *testing.T) {
	issues, funds := newDashboardFixture()
	svc := NewDashboardService(DashboardServiceParams{Issues: issues, Funds: funds, Users: fakePending{n: 3}})

	summary, _, err := svc.Summary(context.Background(), testAdmin)
	require.NoError(t, err)
	require.NotNil(t, summary.PendingVerifications)
	assert.Equal(t, 3, *summary.PendingVerifications)
	assert.Equal(t, "all", summary.Scope)
	assert.Equal(t, models.ScopeAll, issues.scopes[0].Level)
}

func TestDashboardServiceEmptyScope(t *testing.T) {
	svc := NewDashboardService(DashboardServiceParams{Issues: &fakeIssueAggregates{}})

	summary, _, err := svc.Summary(context.Background(), villagerA)
	require.NoError(t, err)
	assert.Zero(t, summary.Issues.Total)
	assert.Empty(t, summary.Issues.StatusChart)
	assert.NotNil(t, summary.Recent)
	assert.NotNil(t, summary.Funds.ByStatus)
}

func TestDashboardServiceStoreFailure(t *testing.T) {
	svc := NewDashboardService(DashboardServiceParams{Issues: &fakeIssueAggregates{err: errors.New("boom")}})

	_, _, err := svc.Summary(context.Background(), villagerA)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestDashboardServiceIssueChartSVG(t *testing.T) {
	issues, _ := newDashboardFixture()
	svc := NewDashboardService(DashboardServiceParams{Issues: issues})

	svg, err := svc.IssueChartSVG(context.Background(), tdoA, workflow.LangEnglish)
	require.NoError(t, err)
	out := string(svg)
	assert.True(t, strings.HasPrefix(out, "<svg"))
	assert.Contains(t, out, "Escalated to TDO")
	assert.Contains(t, out, "Issues by status")
}
