package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/civic-portal-api/internal/dto"
	"github.com/noah-isme/civic-portal-api/internal/models"
	"github.com/noah-isme/civic-portal-api/internal/service"
	"github.com/noah-isme/civic-portal-api/internal/workflow"
	"github.com/noah-isme/civic-portal-api/pkg/response"
)

type fundRequestService interface {
	Create(ctx context.Context, actor service.Actor, req dto.CreateFundRequestRequest) (*models.FundRequest, error)
	List(ctx context.Context, actor service.Actor, filter models.FundRequestFilter) ([]models.FundRequest, *models.Pagination, error)
	Get(ctx context.Context, actor service.Actor, id string) (*models.FundRequest, error)
	Timeline(ctx context.Context, actor service.Actor, id string) (*dto.TimelineResponse, error)
	Transition(ctx context.Context, actor service.Actor, id string, action workflow.Action, req dto.TransitionRequest, idempotencyKey string) (*models.FundRequest, bool, error)
}

// FundRequestHandler exposes fund requests and their approval workflow.
type FundRequestHandler struct {
	service fundRequestService
}

// NewFundRequestHandler constructs a FundRequestHandler.
func NewFundRequestHandler(svc fundRequestService) *FundRequestHandler {
	return &FundRequestHandler{service: svc}
}

// Create godoc
// @Summary Raise a fund request
// @Tags FundRequests
// @Accept json
// @Produce json
// @Param payload body dto.CreateFundRequestRequest true "Fund request"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /fund-requests [post]
func (h *FundRequestHandler) Create(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.CreateFundRequestRequest
	if !bindJSON(c, &req, "invalid fund request payload") {
		return
	}

	fr, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, fr)
}

// List godoc
// @Summary List fund requests
// @Tags FundRequests
// @Produce json
// @Param status query string false "pending, approved, rejected or disbursed"
// @Param priority query string false "high, medium or low"
// @Param issue_id query string false "Linked issue"
// @Param search query string false "Substring of purpose"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /fund-requests [get]
func (h *FundRequestHandler) List(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	params := parseListParams(c)
	filter := models.FundRequestFilter{
		IssueID:   c.Query("issue_id"),
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
	if priority := c.Query("priority"); priority != "" {
		p := workflow.Priority(priority)
		filter.Priority = &p
	}

	requests, pagination, err := h.service.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, pagination)
}

// Get godoc
// @Summary Get fund request
// @Tags FundRequests
// @Produce json
// @Param id path string true "Fund request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /fund-requests/{id} [get]
func (h *FundRequestHandler) Get(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	fr, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fr, nil)
}

// Timeline godoc
// @Summary Fund request timeline
// @Tags FundRequests
// @Produce json
// @Param id path string true "Fund request ID"
// @Success 200 {object} response.Envelope
// @Router /fund-requests/{id}/timeline [get]
func (h *FundRequestHandler) Timeline(c *gin.Context) {
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
// @Summary Apply a fund request action
// @Description recommend, approve, reject or disburse
// @Tags FundRequests
// @Accept json
// @Produce json
// @Param id path string true "Fund request ID"
// @Param action path string true "Action"
// @Param Idempotency-Key header string false "Retry key"
// @Param payload body dto.TransitionRequest false "Comment and expected version"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /fund-requests/{id}/actions/{action} [post]
func (h *FundRequestHandler) Transition(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	req, ok := bindTransition(c)
	if !ok {
		return
	}

	fr, replayed, err := h.service.Transition(c.Request.Context(), actor, c.Param("id"),
		workflow.Action(c.Param("action")), req, c.GetHeader(IdempotencyHeader))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fr, nil, map[string]interface{}{"replayed": replayed})
}
