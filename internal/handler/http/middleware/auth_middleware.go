package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/marketplace-platform/auth-service/internal/domain/models"
)

// AuthCookieName is the HttpOnly cookie carrying the access token. The cookie
// takes precedence over the Authorization header.
const AuthCookieName = "authToken"

// Gin context keys populated for downstream handlers.
const (
	ContextUserIDKey    = "userID"
	ContextEmailKey     = "userEmail"
	ContextRolesKey     = "roles"
	ContextSessionIDKey = "sessionID"
	ContextDeviceIDKey  = "deviceID"
	ContextSessionKey   = "session"
)

// SessionValidator is the part of the session manager the middleware needs.
type SessionValidator interface {
	ValidateSession(ctx context.Context, accessToken string) models.SessionValidationResult
}

// AuthMiddleware authenticates requests against the session manager. The
// token is taken from the auth cookie first, then from a Bearer header.
// Failures respond 401 with a machine-readable hint so clients can attempt a
// silent refresh before forcing a full login.
func AuthMiddleware(validator SessionValidator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			unauthorized(c, "authentication required")
			return
		}

		result := validator.ValidateSession(c, token)
		if !result.IsValid() {
			logger.Warn("Rejected unauthenticated request",
				zap.String("state", string(result.State)),
				zap.String("reason", result.ErrorMessage),
				zap.String("path", c.FullPath()),
			)
			message := result.ErrorMessage
			if message == "" {
				message = "invalid session"
			}
			unauthorized(c, message)
			return
		}

		session := result.Session
		c.Set(ContextSessionKey, session)
		c.Set(ContextUserIDKey, session.UserID.String())
		c.Set(ContextEmailKey, session.UserEmail)
		c.Set(ContextRolesKey, session.Roles)
		c.Set(ContextSessionIDKey, session.ID.String())
		c.Set(ContextDeviceIDKey, session.DeviceID)

		if result.State == models.StateNeedsRefresh {
			c.Header("X-Session-Refresh-Required", "true")
		}

		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	if cookie, err := c.Cookie(AuthCookieName); err == nil && cookie != "" {
		return cookie
	}

	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"message":    message,
		"needsLogin": true,
		"timestamp":  time.Now().UTC(),
	})
}
