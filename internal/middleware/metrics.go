package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/civic-portal-api/internal/service"
)

const unmatchedRoute = "unmatched"

// opsRoutes are hit by health checks and Prometheus itself and are not counted.
var opsRoutes = map[string]struct{}{
	"/health":  {},
	"/ready":   {},
	"/metrics": {},
}

// Metrics records latency and status per route template.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		route := c.FullPath()
		if _, skip := opsRoutes[route]; skip {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		// Raw paths would explode label cardinality on 404 scans.
		if route == "" {
			route = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
