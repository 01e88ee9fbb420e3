package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/civic-portal-api/internal/models"
	appErrors "github.com/noah-isme/civic-portal-api/pkg/errors"
	"github.com/noah-isme/civic-portal-api/pkg/logger"
	"github.com/noah-isme/civic-portal-api/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

// TokenValidator verifies access tokens.
type TokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// JWT protects routes by requiring a valid access token.
func JWT(auth TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		authenticate(c, auth, parts[1])
	}
}

// QueryJWT authenticates from a query parameter. Browsers cannot set headers on a
// WebSocket handshake, so /ws passes the access token as ?token=.
func QueryJWT(auth TokenValidator, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query(param)
		if token == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, param+" query parameter is required"))
			c.Abort()
			return
		}
		authenticate(c, auth, token)
	}
}

func authenticate(c *gin.Context, auth TokenValidator, token string) {
	claims, err := auth.ValidateToken(token)
	if err != nil {
		response.Error(c, err)
		c.Abort()
		return
	}

	c.Set(ContextUserKey, claims)
	c.Set(logger.ActorKey, claims.UserID)
	c.Next()
}

// Claims returns the authenticated user's claims, or nil on public routes.
func Claims(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	claims, _ := value.(*models.JWTClaims)
	return claims
}
