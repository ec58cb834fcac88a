package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/prometheus"
)

// Metrics returns middleware that records request count, duration, and
// in-flight gauge per route.  The route template keeps label cardinality
// bounded; unmatched requests share one label.
func Metrics(m *prometheus.AppMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		method := c.Request.Method
		m.HTTPActiveRequests.WithLabelValues(method).Inc()
		start := time.Now()

		c.Next()

		m.HTTPActiveRequests.WithLabelValues(method).Dec()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		prometheus.RecordHTTPRequest(m, method, path, c.Writer.Status(), time.Since(start))
	}
}
