package handler

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/civic-portal-api/internal/realtime"
	appErrors "github.com/noah-isme/civic-portal-api/pkg/errors"
	"github.com/noah-isme/civic-portal-api/pkg/response"
)

// RealtimeHandler upgrades authenticated requests onto the event feed.
type RealtimeHandler struct {
	hub      *realtime.Hub
	upgrader *websocket.Upgrader
	buffer   int
	logger   *zap.Logger
}

// NewRealtimeHandler builds the handler. An empty origin list allows same-host requests only;
// "*" allows any origin.
func NewRealtimeHandler(hub *realtime.Hub, allowedOrigins []string, buffer int, logger *zap.Logger) *RealtimeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RealtimeHandler{
		hub: hub,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe godoc
// @Summary Live workflow events
// @Description WebSocket feed of issue and fund request events inside the caller's jurisdiction
// @Tags Realtime
// @Param token query string true "Access token"
// @Success 101
// @Failure 401 {object} response.Envelope
// @Router /ws [get]
func (h *RealtimeHandler) Subscribe(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := realtime.Serve(h.hub, h.upgrader, c.Writer, c.Request, claims.Scope(), h.buffer); err != nil {
		// The upgrader has already written the handshake failure.
		h.logger.Debug("websocket upgrade failed", zap.String("user_id", claims.UserID), zap.Error(err))
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(origin, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set[origin]; ok {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}
