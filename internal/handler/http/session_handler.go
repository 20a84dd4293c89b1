package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	domainErrors "github.com/marketplace-platform/auth-service/internal/domain/errors"
	"github.com/marketplace-platform/auth-service/internal/domain/models"
)

// SessionManager is the session core contract the HTTP layer exposes.
type SessionManager interface {
	CreateSession(ctx context.Context, req models.CreateSessionRequest) (*models.SessionToken, error)
	ValidateSession(ctx context.Context, accessToken string) models.SessionValidationResult
	ValidateSessionByID(ctx context.Context, sessionID string) models.SessionValidationResult
	RefreshSession(ctx context.Context, sessionID string) error
	RefreshToken(ctx context.Context, refreshToken string) (*models.SessionToken, error)
	InvalidateSession(ctx context.Context, sessionID string) error
	InvalidateAllUserSessions(ctx context.Context, userID uuid.UUID) error
	GetUserSessions(ctx context.Context, userID uuid.UUID) ([]*models.AuthSession, error)
	RevokeToken(ctx context.Context, tokenString string) (bool, error)
	UpdateSessionMetadata(ctx context.Context, sessionID string, metadata map[string]string) error
}

// SessionHandler exposes the session lifecycle over HTTP for the other
// marketplace services and the gateway.
type SessionHandler struct {
	manager SessionManager
	logger  *zap.Logger
}

// NewSessionHandler creates the handler.
func NewSessionHandler(manager SessionManager, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{manager: manager, logger: logger}
}

// RegisterRoutes mounts the session API under the given router group.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sessions", h.CreateSession)
	rg.POST("/sessions/validate", h.ValidateSession)
	rg.POST("/sessions/:id/refresh", h.RefreshSession)
	rg.PUT("/sessions/:id/metadata", h.UpdateSessionMetadata)
	rg.DELETE("/sessions/:id", h.InvalidateSession)
	rg.POST("/tokens/refresh", h.RefreshToken)
	rg.POST("/tokens/revoke", h.RevokeToken)
	rg.GET("/users/:userId/sessions", h.GetUserSessions)
	rg.DELETE("/users/:userId/sessions", h.InvalidateAllUserSessions)
}

// CreateSession handles POST /sessions.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req models.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.UserID == uuid.Nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	if req.IPAddress == "" {
		req.IPAddress = c.ClientIP()
	}
	if req.UserAgent == "" {
		req.UserAgent = c.Request.UserAgent()
	}

	token, err := h.manager.CreateSession(c, req)
	if err != nil {
		h.logger.Error("Failed to create session", zap.Error(err), zap.String("user_id", req.UserID.String()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	c.JSON(http.StatusCreated, token)
}

type validateRequest struct {
	Token string `json:"token" binding:"required"`
}

// ValidateSession handles POST /sessions/validate. The result is always 200;
// the state field tells the caller what to do next.
func (h *SessionHandler) ValidateSession(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	result := h.manager.ValidateSession(c, req.Token)
	c.JSON(http.StatusOK, result)
}

// RefreshSession handles POST /sessions/:id/refresh - the coarse expiry
// extension, not token rotation.
func (h *SessionHandler) RefreshSession(c *gin.Context) {
	sessionID := c.Param("id")
	if err := h.manager.RefreshSession(c, sessionID); err != nil {
		if errors.Is(err, domainErrors.ErrSessionNotFound) || errors.Is(err, domainErrors.ErrSessionInactive) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		h.logger.Error("Failed to refresh session", zap.Error(err), zap.String("session_id", sessionID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to refresh session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"refreshed": true})
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// RefreshToken handles POST /tokens/refresh: single-use refresh token
// rotation. A superseded or unknown token yields 401 with a login hint.
func (h *SessionHandler) RefreshToken(c *gin.Context) {
	var req refreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token is required"})
		return
	}

	token, err := h.manager.RefreshToken(c, req.RefreshToken)
	if err != nil {
		if errors.Is(err, domainErrors.ErrInvalidRefreshToken) ||
			errors.Is(err, domainErrors.ErrSessionInactive) ||
			errors.Is(err, domainErrors.ErrSessionExpired) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"message":    "invalid refresh token",
				"needsLogin": true,
				"timestamp":  time.Now().UTC(),
			})
			return
		}
		h.logger.Error("Failed to rotate tokens", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to refresh tokens"})
		return
	}

	c.JSON(http.StatusOK, token)
}

type revokeTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// RevokeToken handles POST /tokens/revoke.
func (h *SessionHandler) RevokeToken(c *gin.Context) {
	var req revokeTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	revoked, err := h.manager.RevokeToken(c, req.Token)
	if err != nil {
		h.logger.Error("Failed to revoke token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": revoked})
}

// InvalidateSession handles DELETE /sessions/:id. Idempotent.
func (h *SessionHandler) InvalidateSession(c *gin.Context) {
	sessionID := c.Param("id")
	if err := h.manager.InvalidateSession(c, sessionID); err != nil {
		h.logger.Error("Failed to invalidate session", zap.Error(err), zap.String("session_id", sessionID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to invalidate session"})
		return
	}
	c.Status(http.StatusNoContent)
}

// GetUserSessions handles GET /users/:userId/sessions.
func (h *SessionHandler) GetUserSessions(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	sessions, err := h.manager.GetUserSessions(c, userID)
	if err != nil {
		h.logger.Error("Failed to list user sessions", zap.Error(err), zap.String("user_id", userID.String()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// InvalidateAllUserSessions handles DELETE /users/:userId/sessions - the
// "log out everywhere" operation.
func (h *SessionHandler) InvalidateAllUserSessions(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	if err := h.manager.InvalidateAllUserSessions(c, userID); err != nil {
		h.logger.Error("Failed to invalidate user sessions", zap.Error(err), zap.String("user_id", userID.String()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to invalidate sessions"})
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdateSessionMetadata handles PUT /sessions/:id/metadata. The metadata map
// is replaced wholesale.
func (h *SessionHandler) UpdateSessionMetadata(c *gin.Context) {
	sessionID := c.Param("id")

	var metadata map[string]string
	if err := c.ShouldBindJSON(&metadata); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid metadata body"})
		return
	}

	if err := h.manager.UpdateSessionMetadata(c, sessionID, metadata); err != nil {
		if errors.Is(err, domainErrors.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		h.logger.Error("Failed to update session metadata", zap.Error(err), zap.String("session_id", sessionID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update metadata"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}
