package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/civic-portal-api/internal/dto"
	"github.com/noah-isme/civic-portal-api/internal/middleware"
	"github.com/noah-isme/civic-portal-api/internal/service"
	appErrors "github.com/noah-isme/civic-portal-api/pkg/errors"
	"github.com/noah-isme/civic-portal-api/pkg/response"
)

type dashboardService interface {
	Summary(ctx context.Context, actor service.Actor) (*dto.DashboardResponse, bool, error)
	IssueChartSVG(ctx context.Context, actor service.Actor, lang string) ([]byte, error)
}

// DashboardHandler wires dashboard service to HTTP endpoints.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(svc dashboardService) *DashboardHandler {
	return &DashboardHandler{service: svc}
}

// Summary godoc
// @Summary Role-scoped dashboard
// @Description Issue and fund request aggregates for the caller's jurisdiction
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard [get]
func (h *DashboardHandler) Summary(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	summary, cacheHit, err := h.service.Summary(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ExtractMeta(c))
}

// IssueChart godoc
// @Summary Issue status donut
// @Tags Dashboard
// @Produce image/svg+xml
// @Param lang query string false "Label language"
// @Success 200 {file} binary
// @Router /dashboard/issues/chart.svg [get]
func (h *DashboardHandler) IssueChart(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	svg, err := h.service.IssueChartSVG(c.Request.Context(), actor, preferredLanguage(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/svg+xml", svg)
}
