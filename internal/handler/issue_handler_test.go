package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/civic-portal-api/internal/dto"
	"github.com/noah-isme/civic-portal-api/internal/models"
	"github.com/noah-isme/civic-portal-api/internal/service"
	"github.com/noah-isme/civic-portal-api/internal/workflow"
	appErrors "github.com/noah-isme/civic-portal-api/pkg/errors"
)

type issueServiceMock struct {
	actor    service.Actor
	created  dto.CreateIssueRequest
	filter   models.IssueFilter
	action   workflow.Action
	request  dto.TransitionRequest
	key      string
	replayed bool
	err      error
}

func (m *issueServiceMock) Create(_ context.Context, actor service.Actor, req dto.CreateIssueRequest) (*models.Issue, error) {
	m.actor = actor
	m.created = req
	return &models.Issue{ID: "issue-1", Title: req.Title, Status: workflow.StatusSubmitted, Version: 1}, nil
}

func (m *issueServiceMock) List(_ context.Context, actor service.Actor, filter models.IssueFilter) ([]models.Issue, *models.Pagination, error) {
	m.actor = actor
	m.filter = filter
	return []models.Issue{}, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (m *issueServiceMock) Get(_ context.Context, _ service.Actor, id string) (*models.Issue, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.Issue{ID: id}, nil
}

func (m *issueServiceMock) Timeline(_ context.Context, _ service.Actor, id string) (*dto.TimelineResponse, error) {
	return &dto.TimelineResponse{EntityID: id}, nil
}

func (m *issueServiceMock) Transition(_ context.Context, actor service.Actor, id string, action workflow.Action, req dto.TransitionRequest, key string) (*models.Issue, bool, error) {
	m.actor = actor
	m.action = action
	m.request = req
	m.key = key
	if m.err != nil {
		return nil, false, m.err
	}
	return &models.Issue{ID: id, Status: workflow.StatusPDOAssigned, Version: 3}, m.replayed, nil
}

func TestIssueHandlerCreate(t *testing.T) {
	svc := &issueServiceMock{}
	h := NewIssueHandler(svc)
	body := mustJSON(t, dto.CreateIssueRequest{Title: "Broken culvert", Description: "Collapsed", Category: models.IssueCategory("ROAD")})
	c, w := authedContext(http.MethodPost, "/issues", body, claimsFor(models.RoleVillager, "v-1"))

	h.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "v-1", svc.actor.ID)
	assert.Equal(t, models.ScopeOwn, svc.actor.Scope.Level)
	assert.Equal(t, "Broken culvert", svc.created.Title)
	assert.Equal(t, "submitted", decode(t, w).Data["status"])
}

func TestIssueHandlerListFilters(t *testing.T) {
	svc := &issueServiceMock{}
	h := NewIssueHandler(svc)
	c, w := authedContext(http.MethodGet, "/issues?status=escalated_to_tdo&category=WATER&overdue=true&escalated=1&search=pump&sort_by=status", nil, claimsFor(models.RolePDO, "pdo-1"))

	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.filter.Status)
	assert.Equal(t, workflow.StatusEscalatedToTDO, *svc.filter.Status)
	require.NotNil(t, svc.filter.Category)
	assert.Equal(t, models.IssueCategory("WATER"), *svc.filter.Category)
	assert.True(t, svc.filter.Overdue)
	assert.True(t, svc.filter.Escalated)
	assert.Equal(t, "pump", svc.filter.Search)
	assert.Equal(t, "status", svc.filter.SortBy)
	assert.Equal(t, models.ScopePanchayat, svc.actor.Scope.Level)
}

func TestIssueHandlerTransition(t *testing.T) {
	svc := &issueServiceMock{replayed: true}
	h := NewIssueHandler(svc)
	c, w := authedContext(http.MethodPost, "/issues/issue-1/actions/assign", []byte(`{"workerId":"w-7","version":2}`), claimsFor(models.RolePDO, "pdo-1"))
	c.Request.Header.Set(IdempotencyHeader, "key-1")
	c.AddParam("id", "issue-1")
	c.AddParam("action", "assign")

	h.Transition(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, workflow.ActionAssign, svc.action)
	assert.Equal(t, "w-7", svc.request.WorkerID)
	require.NotNil(t, svc.request.Version)
	assert.Equal(t, 2, *svc.request.Version)
	assert.Equal(t, "key-1", svc.key)
	env := decode(t, w)
	assert.Equal(t, true, env.Meta["replayed"])
	assert.Equal(t, float64(3), env.Data["version"])
}

func TestIssueHandlerTransitionWithoutBody(t *testing.T) {
	svc := &issueServiceMock{}
	h := NewIssueHandler(svc)
	c, w := authedContext(http.MethodPost, "/issues/issue-1/actions/start", nil, claimsFor(models.RolePDO, "pdo-1"))
	c.AddParam("id", "issue-1")
	c.AddParam("action", "start")

	h.Transition(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, workflow.ActionStart, svc.action)
	assert.Equal(t, false, decode(t, w).Meta["replayed"])
}

func TestIssueHandlerTransitionErrors(t *testing.T) {
	svc := &issueServiceMock{err: appErrors.ErrIllegalTransition}
	h := NewIssueHandler(svc)
	c, w := authedContext(http.MethodPost, "/issues/issue-1/actions/close", nil, claimsFor(models.RoleVillageIncharge, "vi-1"))
	c.AddParam("id", "issue-1")
	c.AddParam("action", "close")
	h.Transition(c)
	assert.Equal(t, appErrors.ErrIllegalTransition.Status, w.Code)
	assert.Equal(t, appErrors.ErrIllegalTransition.Code, decode(t, w).Error.Code)

	c, w = newGinContext(http.MethodPost, "/issues/issue-1/actions/close", nil)
	h.Transition(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = authedContext(http.MethodPost, "/issues/issue-1/actions/assign", []byte(`{"workerId":`), claimsFor(models.RolePDO, "pdo-1"))
	h.Transition(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
