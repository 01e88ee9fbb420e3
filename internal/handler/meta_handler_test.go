package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/civic-portal-api/internal/service"
)

func TestMetaHandlerStatusesNegotiatesLanguage(t *testing.T) {
	handler := NewMetaHandler(service.NewMetaService(72 * time.Hour))

	c, w := newGinContext(http.MethodGet, "/meta/statuses", nil)
	c.Request.Header.Set("Accept-Language", "hi-IN,hi;q=0.9,en;q=0.5")
	handler.Statuses(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hi", decode(t, w).Data["language"])

	c, w = newGinContext(http.MethodGet, "/meta/statuses?lang=kn", nil)
	c.Request.Header.Set("Accept-Language", "hi")
	handler.Statuses(c)
	env := decode(t, w)
	assert.Equal(t, "kn", env.Data["language"])
	assert.Equal(t, float64(72), env.Data["issueSlaHours"])
}

type pingStub struct{ err error }

func (p pingStub) PingContext(context.Context) error { return p.err }

func TestMetricsHandlerReady(t *testing.T) {
	handler := NewMetricsHandler(service.NewMetricsService(), map[string]Pinger{"postgres": pingStub{}})
	c, w := newGinContext(http.MethodGet, "/health/ready", nil)
	handler.Ready(c)
	assert.Equal(t, http.StatusOK, w.Code)

	handler = NewMetricsHandler(nil, map[string]Pinger{"postgres": pingStub{}, "redis": pingStub{err: errors.New("dial tcp: refused")}})
	c, w = newGinContext(http.MethodGet, "/health/ready", nil)
	handler.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "refused")

	c, w = newGinContext(http.MethodGet, "/metrics", nil)
	handler.Prometheus(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
