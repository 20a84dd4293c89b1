package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// HealthHandler reports service liveness and the reachability of the session
// store backend.
type HealthHandler struct {
	redisClient *redis.Client
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{redisClient: redisClient}
}

// Healthz handles GET /healthz. Redis being unreachable degrades the status
// to 503 since no session can be validated without it.
func (h *HealthHandler) Healthz(c *gin.Context) {
	status := http.StatusOK
	redisStatus := "ok"

	if h.redisClient != nil {
		if err := h.redisClient.Ping(c.Request.Context()).Err(); err != nil {
			status = http.StatusServiceUnavailable
			redisStatus = "unreachable"
		}
	}

	c.JSON(status, gin.H{
		"status":    redisStatus,
		"timestamp": time.Now().UTC(),
	})
}
