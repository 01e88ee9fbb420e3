package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/civic-portal-api/internal/dto"
	"github.com/noah-isme/civic-portal-api/pkg/response"
)

type statusCatalog interface {
	StatusCatalog(prefs ...string) *dto.StatusCatalogResponse
}

// MetaHandler serves reference data clients render labels from.
type MetaHandler struct {
	catalog statusCatalog
}

// NewMetaHandler constructs a MetaHandler.
func NewMetaHandler(catalog statusCatalog) *MetaHandler {
	return &MetaHandler{catalog: catalog}
}

// Statuses godoc
// @Summary Localized status catalog
// @Description Status labels, allowed transitions and priority levels
// @Tags Meta
// @Produce json
// @Param lang query string false "Preferred language, overrides Accept-Language"
// @Success 200 {object} response.Envelope
// @Router /meta/statuses [get]
func (h *MetaHandler) Statuses(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.catalog.StatusCatalog(c.Query("lang"), c.GetHeader("Accept-Language")), nil)
}

// preferredLanguage returns the ?lang= override or the raw Accept-Language header.
func preferredLanguage(c *gin.Context) string {
	if lang := c.Query("lang"); lang != "" {
		return lang
	}
	return c.GetHeader("Accept-Language")
}
