package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Hub fans events out to subscribed clients. Each client only receives events
// inside its scope; a client whose buffer is full is disconnected.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *zap.Logger
	onCount func(int)
	closed  bool
}

// HubOption customises a Hub.
type HubOption func(*Hub)

// WithClientGauge registers a callback invoked with the client count after every change.
func WithClientGauge(fn func(int)) HubOption {
	return func(h *Hub) { h.onCount = fn }
}

func NewHub(logger *zap.Logger, opts ...HubOption) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{clients: make(map[*Client]struct{}), logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("realtime client connected", zap.String("user_id", c.scope.UserID), zap.Int("clients", n))
	h.report(n)
	return true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("realtime client disconnected", zap.String("user_id", c.scope.UserID), zap.Int("clients", n))
	h.report(n)
}

// Publish delivers ev to every client whose scope covers it.
func (h *Hub) Publish(ev Event) {
	if h == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal realtime event", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}

	var slow []*Client
	h.mu.RLock()
	for c := range h.clients {
		if !c.scope.Covers(ev.OwnerID, ev.Jurisdiction) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow realtime client", zap.String("user_id", c.scope.UserID))
		h.unregister(c)
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.report(0)
}

func (h *Hub) report(n int) {
	if h.onCount != nil {
		h.onCount(n)
	}
}
