package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/marketplace-platform/auth-service/internal/service"
)

// ActivityMiddleware queues a lastActivity bump for every authenticated
// request. The bump is applied by the background updater; the request never
// waits on it and never fails because of it.
func ActivityMiddleware(sink service.ActivitySink) gin.HandlerFunc {
	return func(c *gin.Context) {
		if sessionID := c.GetString(ContextSessionIDKey); sessionID != "" {
			sink.Enqueue(sessionID)
		}
		c.Next()
	}
}
