// metrics.go provides Gin middleware that records Prometheus request counters and
// latency histograms, labelled by route template rather than raw URL to keep label
// cardinality bounded.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/medtrack/inventory-backend/internal/telemetry"
)

// MetricsMiddleware records per-request metrics.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			// Unmatched routes collapse into one label value.
			path = "unmatched"
		}

		telemetry.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method, path, strconv.Itoa(c.Writer.Status()),
		).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(
			c.Request.Method, path,
		).Observe(time.Since(start).Seconds())
	}
}
