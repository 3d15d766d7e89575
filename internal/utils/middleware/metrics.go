package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lapstore/server/internal/utils/metrics"
)

// Metrics returns a middleware that records HTTP request metrics.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		m.HTTPRequestsInFlight.Inc()

		c.Next()

		m.HTTPRequestsInFlight.Dec()

		// Use the route template so cardinality stays bounded.
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.ObserveHTTPRequest(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start),
		)
	}
}
