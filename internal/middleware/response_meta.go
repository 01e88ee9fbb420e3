package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/civic-portal-api/pkg/middleware/requestid"
)

const (
	responseMetaKey = "response_meta"
	cacheHitKey     = "cache_hit"
	requestIDKey    = "request_id"
	elapsedKey      = "processing_time_ms"
)

// WithResponseMeta gives each request a meta bag that handlers fill and the envelope echoes.
// Elapsed time is stamped lazily by ExtractMeta so it reflects the moment the body is written.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseMetaKey, &responseMeta{
			started: time.Now(),
			values:  map[string]interface{}{},
		})
		c.Next()
	}
}

type responseMeta struct {
	started time.Time
	values  map[string]interface{}
}

// SetMeta stores an arbitrary key on the response meta.
func SetMeta(c *gin.Context, key string, value interface{}) {
	if m := metaFor(c); m != nil {
		m.values[key] = value
	}
}

// SetCacheHit marks whether the payload came from cache.
func SetCacheHit(c *gin.Context, hit bool) {
	SetMeta(c, cacheHitKey, hit)
}

// ExtractMeta returns a copy of the collected meta, or nil when WithResponseMeta is not installed.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	m := metaFor(c)
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m.values)+2)
	for k, v := range m.values {
		out[k] = v
	}
	if _, ok := out[elapsedKey]; !ok {
		out[elapsedKey] = time.Since(m.started).Milliseconds()
	}
	if id := requestid.Value(c); id != "" {
		out[requestIDKey] = id
	}
	return out
}

func metaFor(c *gin.Context) *responseMeta {
	if c == nil {
		return nil
	}
	raw, ok := c.Get(responseMetaKey)
	if !ok {
		return nil
	}
	m, _ := raw.(*responseMeta)
	return m
}
