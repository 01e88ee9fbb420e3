package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/civic-portal-api/internal/dto"
	"github.com/noah-isme/civic-portal-api/internal/models"
	"github.com/noah-isme/civic-portal-api/internal/service"
	"github.com/noah-isme/civic-portal-api/internal/workflow"
	"github.com/noah-isme/civic-portal-api/pkg/response"
)

type issueService interface {
	Create(ctx context.Context, actor service.Actor, req dto.CreateIssueRequest) (*models.Issue, error)
	List(ctx context.Context, actor service.Actor, filter models.IssueFilter) ([]models.Issue, *models.Pagination, error)
	Get(ctx context.Context, actor service.Actor, id string) (*models.Issue, error)
	Timeline(ctx context.Context, actor service.Actor, id string) (*dto.TimelineResponse, error)
	Transition(ctx context.Context, actor service.Actor, id string, action workflow.Action, req dto.TransitionRequest, idempotencyKey string) (*models.Issue, bool, error)
}

// IssueHandler exposes issue reporting and the issue workflow.
type IssueHandler struct {
	service issueService
}

// NewIssueHandler constructs an IssueHandler.
func NewIssueHandler(svc issueService) *IssueHandler {
	return &IssueHandler{service: svc}
}

// Create godoc
// @Summary Report an issue
// @Tags Issues
// @Accept json
// @Produce json
// @Param payload body dto.CreateIssueRequest true "Issue"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /issues [post]
func (h *IssueHandler) Create(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.CreateIssueRequest
	if !bindJSON(c, &req, "invalid issue payload") {
		return
	}

	issue, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, issue)
}

// List godoc
// @Summary List issues
// @Description Issues visible within the caller's jurisdiction
// @Tags Issues
// @Produce json
// @Param status query string false "Display status, escalated_to_tdo and escalated_to_ddo included"
// @Param category query string false "Category"
// @Param search query string false "Substring of title or description"
// @Param escalated query bool false "Only escalated issues"
// @Param overdue query bool false "Only issues past the SLA"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param sort_by query string false "created_at, updated_at or status"
// @Param sort_order query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Router /issues [get]
func (h *IssueHandler) List(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	params := parseListParams(c)
	filter := models.IssueFilter{
		Search:    params.Search,
		Page:      params.Page,
		PageSize:  params.PageSize,
		SortBy:    params.SortBy,
		SortOrder: params.SortOrder,
	}
	if status := c.Query("status"); status != "" {
		s := workflow.Status(status)
		filter.Status = &s
	}
	if category := c.Query("category"); category != "" {
		cat := models.IssueCategory(category)
		filter.Category = &cat
	}
	filter.Escalated, _ = strconv.ParseBool(c.Query("escalated"))
	filter.Overdue, _ = strconv.ParseBool(c.Query("overdue"))

	issues, pagination, err := h.service.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, issues, pagination)
}

// Get godoc
// @Summary Get issue
// @Tags Issues
// @Produce json
// @Param id path string true "Issue ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /issues/{id} [get]
func (h *IssueHandler) Get(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	issue, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, issue, nil)
}

// Timeline godoc
// @Summary Issue timeline
// @Description Workflow events oldest first
// @Tags Issues
// @Produce json
// @Param id path string true "Issue ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /issues/{id}/timeline [get]
func (h *IssueHandler) Timeline(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	timeline, err := h.service.Timeline(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, timeline, nil)
}

// Transition godoc
// @Summary Apply a workflow action
// @Description verify, assign, start, reassign, escalate, resolve or close
// @Tags Issues
// @Accept json
// @Produce json
// @Param id path string true "Issue ID"
// @Param action path string true "Action"
// @Param Idempotency-Key header string false "Retry key"
// @Param payload body dto.TransitionRequest false "Action payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /issues/{id}/actions/{action} [post]
func (h *IssueHandler) Transition(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	req, ok := bindTransition(c)
	if !ok {
		return
	}

	issue, replayed, err := h.service.Transition(c.Request.Context(), actor, c.Param("id"),
		workflow.Action(c.Param("action")), req, c.GetHeader(IdempotencyHeader))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, issue, nil, map[string]interface{}{"replayed": replayed})
}

// bindTransition accepts an empty body since most actions carry no payload.
func bindTransition(c *gin.Context) (dto.TransitionRequest, bool) {
	var req dto.TransitionRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	return req, bindJSON(c, &req, "invalid action payload")
}
