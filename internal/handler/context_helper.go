package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/civic-portal-api/internal/middleware"
	"github.com/noah-isme/civic-portal-api/internal/models"
	"github.com/noah-isme/civic-portal-api/internal/service"
	appErrors "github.com/noah-isme/civic-portal-api/pkg/errors"
	"github.com/noah-isme/civic-portal-api/pkg/response"
)

// IdempotencyHeader carries the client's retry key on workflow actions.
const IdempotencyHeader = "Idempotency-Key"

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

// currentActor writes a 401 and returns false when the route was reached without claims.
func currentActor(c *gin.Context) (service.Actor, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return service.Actor{}, false
	}
	return service.ActorFromClaims(claims, c.ClientIP(), c.GetHeader("User-Agent")), true
}

func bindJSON(c *gin.Context, dst interface{}, msg string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, msg))
		return false
	}
	return true
}

type listParams struct {
	Page      int
	PageSize  int
	Search    string
	SortBy    string
	SortOrder string
}

// parseListParams reads paging and sorting the way every list endpoint accepts them.
// Malformed numbers fall back to the defaults.
func parseListParams(c *gin.Context) listParams {
	p := listParams{Page: 1, PageSize: 20}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		p.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		p.PageSize = size
	}
	p.Search = c.Query("search")
	p.SortBy = c.Query("sort_by")
	p.SortOrder = c.Query("sort_order")
	return p
}
