package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/marketplace-platform/auth-service/internal/utils/metrics"
)

// MetricsMiddleware records request duration by method, route, and status.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RequestDuration.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
