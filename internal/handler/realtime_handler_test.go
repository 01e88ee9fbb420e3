package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/civic-portal-api/internal/middleware"
	"github.com/noah-isme/civic-portal-api/internal/models"
	"github.com/noah-isme/civic-portal-api/internal/realtime"
)

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://portal.example.org/"})
	req := httptest.NewRequest(http.MethodGet, "http://api.example.org/ws", nil)

	assert.True(t, check(req), "non-browser clients send no origin")

	req.Header.Set("Origin", "https://portal.example.org")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))

	req.Header.Set("Origin", "http://api.example.org")
	assert.True(t, check(req), "same host")

	assert.True(t, originChecker([]string{"*"})(req))
}

func TestRealtimeHandlerStreamsScopedEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := realtime.NewHub(nil)
	t.Cleanup(hub.Close)
	handler := NewRealtimeHandler(hub, nil, 8, nil)

	router := gin.New()
	router.GET("/ws", func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, claimsFor(models.RolePDO, "pdo-1"))
	}, handler.Subscribe)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(realtime.Event{Type: realtime.FundRequestCreated, EntityID: "fr-1", Jurisdiction: panchayatP1, At: time.Now()})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, "fund_request.created", got["type"])
}

func TestRealtimeHandlerRejectsAnonymous(t *testing.T) {
	handler := NewRealtimeHandler(realtime.NewHub(nil), nil, 0, nil)
	c, w := newGinContext(http.MethodGet, "/ws", nil)

	handler.Subscribe(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
