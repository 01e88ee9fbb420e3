package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(origins ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(New(DefaultOptions(origins)))
	r.GET("/issues", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.OPTIONS("/issues", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func do(r *gin.Engine, method, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/issues", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if method == http.MethodOptions {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestListedOriginGetsCredentials(t *testing.T) {
	r := newRouter("https://portal.example.gov/")
	rec := do(r, http.MethodGet, "https://portal.example.gov")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://portal.example.gov", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestPreflight(t *testing.T) {
	r := newRouter("https://portal.example.gov")
	rec := do(r, http.MethodOptions, "https://portal.example.gov")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")

	rec = do(r, http.MethodOptions, "https://evil.example.com")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUnlistedOriginPassesWithoutHeaders(t *testing.T) {
	r := newRouter("https://portal.example.gov")
	rec := do(r, http.MethodGet, "https://evil.example.com")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestWildcard(t *testing.T) {
	for _, r := range []*gin.Engine{newRouter(), newRouter("*")} {
		rec := do(r, http.MethodGet, "https://anywhere.example.org")
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
	}
}
