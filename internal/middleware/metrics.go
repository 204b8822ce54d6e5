package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"photolineart-backend/internal/metrics"
)

// RequestMetrics records status and latency per matched route.
func RequestMetrics(m *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RecordHTTP(route, c.Writer.Status(), time.Since(start))
	}
}
