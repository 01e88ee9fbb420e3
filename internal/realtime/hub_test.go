package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/civic-portal-api/internal/models"
)

func dial(t *testing.T, hub *Hub, scope models.Scope) *websocket.Conn {
	t.Helper()
	upgrader := &websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, Serve(hub, upgrader, w, r, scope, 4))
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Count() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHubDeliversOnlyWithinScope(t *testing.T) {
	hub := NewHub(nil)
	p1 := models.Jurisdiction{DistrictID: "D1", TalukID: "T1", PanchayatID: "P1", VillageID: "V1"}
	p2 := models.Jurisdiction{DistrictID: "D1", TalukID: "T1", PanchayatID: "P2", VillageID: "V2"}

	pdo := dial(t, hub, models.ScopeFor(models.RolePDO, "pdo-1", p1))
	other := dial(t, hub, models.ScopeFor(models.RolePDO, "pdo-2", p2))
	waitForClients(t, hub, 2)

	hub.Publish(Event{Type: IssueCreated, EntityID: "issue-1", Jurisdiction: p1, OwnerID: "v1", At: time.Now()})

	require.NoError(t, pdo.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := pdo.ReadMessage()
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, "issue.created", got["type"])
	assert.Equal(t, "issue-1", got["entityId"])
	assert.NotContains(t, got, "OwnerID")

	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err = other.ReadMessage()
	assert.Error(t, err)
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	var last atomic.Int32
	last.Store(-1)
	hub := NewHub(nil, WithClientGauge(func(n int) { last.Store(int32(n)) }))
	conn := dial(t, hub, models.ScopeFor(models.RoleAdmin, "admin", models.Jurisdiction{}))
	waitForClients(t, hub, 1)

	hub.Close()
	assert.Equal(t, 0, hub.Count())
	assert.Equal(t, int32(0), last.Load())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestPublishOnNilHub(t *testing.T) {
	var hub *Hub
	assert.NotPanics(t, func() { hub.Publish(Event{Type: IssueCreated}) })
}
