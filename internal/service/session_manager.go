package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketplace-platform/auth-service/internal/config"
	domainErrors "github.com/marketplace-platform/auth-service/internal/domain/errors"
	"github.com/marketplace-platform/auth-service/internal/domain/models"
	"github.com/marketplace-platform/auth-service/internal/events/kafka"
	"github.com/marketplace-platform/auth-service/internal/repository/interfaces"
	"github.com/marketplace-platform/auth-service/internal/utils/metrics"
)

// EventPublisher publishes session lifecycle events. Implemented by the Kafka
// producer; nil means events are disabled.
type EventPublisher interface {
	PublishSessionEvent(ctx context.Context, eventType string, key string, payload interface{}) error
}

// SessionManager orchestrates the token codec, session store, and revocation
// list into the session lifecycle: create, validate, refresh, rotate,
// invalidate, and cleanup. It holds no mutable state of its own; all shared
// state lives in the store, so a single manager is safe for concurrent use
// and multiple instances coordinate through the store alone.
type SessionManager struct {
	store       interfaces.SessionStore
	revocations interfaces.RevocationList
	tokens      *TokenService
	events      EventPublisher
	activity    ActivitySink
	jwtCfg      config.JWTConfig
	sessionCfg  config.SessionConfig
	logger      *zap.Logger
}

// NewSessionManager creates a session manager. events may be nil.
func NewSessionManager(
	store interfaces.SessionStore,
	revocations interfaces.RevocationList,
	tokens *TokenService,
	events EventPublisher,
	jwtCfg config.JWTConfig,
	sessionCfg config.SessionConfig,
	logger *zap.Logger,
) *SessionManager {
	return &SessionManager{
		store:       store,
		revocations: revocations,
		tokens:      tokens,
		events:      events,
		jwtCfg:      jwtCfg,
		sessionCfg:  sessionCfg,
		logger:      logger,
	}
}

// SetActivitySink installs the asynchronous activity updater. Without one,
// activity bumps during validation are applied inline, best-effort.
func (m *SessionManager) SetActivitySink(sink ActivitySink) {
	m.activity = sink
}

// CreateSession builds and persists a new session and returns its token pair.
// The per-user concurrency limit is enforced after the save, so the new
// session can never be evicted by its own creation.
func (m *SessionManager) CreateSession(ctx context.Context, req models.CreateSessionRequest) (*models.SessionToken, error) {
	now := time.Now().UTC()

	duration := req.SessionDuration
	if duration <= 0 {
		duration = m.sessionCfg.DefaultDuration
	}
	deviceID := req.DeviceID
	if deviceID == "" {
		deviceID = models.DefaultDeviceID
	}

	session := &models.AuthSession{
		ID:           uuid.New(),
		UserID:       req.UserID,
		UserEmail:    req.UserEmail,
		UserName:     req.UserName,
		Roles:        req.Roles,
		DeviceID:     deviceID,
		IPAddress:    req.IPAddress,
		UserAgent:    req.UserAgent,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(duration),
		IsActive:     true,
		Metadata:     req.Metadata,
	}

	token, err := m.issueTokenPair(session)
	if err != nil {
		return nil, err
	}

	if err := m.store.Save(ctx, session, token); err != nil {
		m.logger.Error("Failed to create session",
			zap.Error(err),
			zap.String("user_id", req.UserID.String()),
		)
		return nil, err
	}

	// Eviction of older sessions is a normal consequence of login, never an
	// error surfaced to the caller.
	if err := m.enforceSessionLimit(ctx, req.UserID); err != nil {
		m.logger.Warn("Failed to enforce session limit",
			zap.Error(err),
			zap.String("user_id", req.UserID.String()),
		)
	}

	m.publishEvent(ctx, kafka.EventSessionCreated, session.ID.String(), map[string]string{
		"session_id": session.ID.String(),
		"user_id":    session.UserID.String(),
		"device_id":  session.DeviceID,
		"ip_address": session.IPAddress,
	})
	metrics.SessionsCreatedTotal.Inc()

	m.logger.Info("Created new session",
		zap.String("session_id", session.ID.String()),
		zap.String("user_id", req.UserID.String()),
	)
	return token, nil
}

// ValidateSession verifies the access token, rejects revoked token ids, and
// then validates the embedded session. All failures are surfaced as a result,
// never an error: the read path fails closed.
func (m *SessionManager) ValidateSession(ctx context.Context, accessToken string) models.SessionValidationResult {
	claims, err := m.tokens.Verify(accessToken)
	if err != nil {
		return m.recordValidation(models.ValidationFailed(verifyFailureReason(err)))
	}

	// Claims below come from a token whose signature already checked out.
	if claims.JTI != "" {
		revoked, err := m.revocations.IsRevoked(ctx, claims.JTI)
		if err != nil {
			m.logger.Warn("Failed to check token revocation during validation", zap.Error(err))
			return m.recordValidation(models.ValidationFailed("session validation error"))
		}
		if revoked {
			return m.recordValidation(models.ValidationFailed("token has been revoked"))
		}
	}

	if claims.SessionID == "" {
		return m.recordValidation(models.ValidationFailed("session id not found in token"))
	}

	return m.ValidateSessionByID(ctx, claims.SessionID)
}

// ValidateSessionByID validates the stored session record: existence, active
// flag, and expiry. An expired session is invalidated as a side effect.
// Past the activity-extension threshold the lastActivity bump is handed to
// the asynchronous sink; its failure never fails validation. Inside the
// refresh-threshold window the result is needs-refresh, still authenticated.
func (m *SessionManager) ValidateSessionByID(ctx context.Context, sessionID string) models.SessionValidationResult {
	session, err := m.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domainErrors.ErrSessionNotFound) {
			return m.recordValidation(models.ValidationFailed("session not found"))
		}
		m.logger.Warn("Failed to load session during validation",
			zap.Error(err),
			zap.String("session_id", sessionID),
		)
		return m.recordValidation(models.ValidationFailed("session validation error"))
	}

	if !session.IsActive {
		return m.recordValidation(models.ValidationFailed("session is inactive"))
	}

	now := time.Now().UTC()
	if !session.ExpiresAt.After(now) {
		if err := m.InvalidateSession(ctx, sessionID); err != nil {
			m.logger.Warn("Failed to invalidate expired session",
				zap.Error(err),
				zap.String("session_id", sessionID),
			)
		}
		return m.recordValidation(models.ValidationExpired())
	}

	if now.Sub(session.LastActivity) > m.sessionCfg.ActivityExtensionThreshold {
		m.bumpActivityAsync(ctx, sessionID)
		session.LastActivity = now
	}

	if session.ExpiresAt.Sub(now) <= m.sessionCfg.RefreshThreshold {
		return m.recordValidation(models.ValidationRefreshRequired(session))
	}

	return m.recordValidation(models.ValidationSuccess(session))
}

// RefreshSession unconditionally extends the session by the default duration
// and bumps lastActivity. This is the coarse "just extend it" operation,
// distinct from token rotation.
func (m *SessionManager) RefreshSession(ctx context.Context, sessionID string) error {
	session, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.IsActive {
		return domainErrors.ErrSessionInactive
	}

	now := time.Now().UTC()
	session.ExpiresAt = now.Add(m.sessionCfg.DefaultDuration)
	session.LastActivity = now

	if err := m.store.Save(ctx, session, nil); err != nil {
		return err
	}

	m.logger.Debug("Refreshed session", zap.String("session_id", sessionID))
	return nil
}

// RefreshToken rotates the token pair for the session owning the presented
// refresh token. The token is consumed atomically, so a second presentation
// of the same value fails even under concurrent callers. Once consumed, a
// failure further down burns the token; the caller must log in again.
func (m *SessionManager) RefreshToken(ctx context.Context, refreshToken string) (*models.SessionToken, error) {
	sessionID, err := m.store.ConsumeRefreshToken(ctx, refreshToken)
	if err != nil {
		metrics.TokenRotationsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	session, err := m.store.Get(ctx, sessionID)
	if err != nil {
		metrics.TokenRotationsTotal.WithLabelValues("rejected").Inc()
		if errors.Is(err, domainErrors.ErrSessionNotFound) {
			return nil, domainErrors.ErrInvalidRefreshToken
		}
		return nil, err
	}
	if !session.IsActive {
		metrics.TokenRotationsTotal.WithLabelValues("rejected").Inc()
		return nil, domainErrors.ErrSessionInactive
	}
	if session.IsExpired() {
		metrics.TokenRotationsTotal.WithLabelValues("rejected").Inc()
		return nil, domainErrors.ErrSessionExpired
	}

	token, err := m.issueTokenPair(session)
	if err != nil {
		metrics.TokenRotationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	session.LastActivity = time.Now().UTC()
	if err := m.store.Save(ctx, session, token); err != nil {
		metrics.TokenRotationsTotal.WithLabelValues("error").Inc()
		m.logger.Error("Failed to persist rotated tokens",
			zap.Error(err),
			zap.String("session_id", sessionID),
		)
		return nil, err
	}

	m.publishEvent(ctx, kafka.EventSessionRefreshed, sessionID, map[string]string{
		"session_id": sessionID,
		"user_id":    session.UserID.String(),
	})
	metrics.TokenRotationsTotal.WithLabelValues("ok").Inc()

	m.logger.Debug("Rotated tokens for session", zap.String("session_id", sessionID))
	return token, nil
}

// InvalidateSession deletes the session and its refresh token. Invalidating a
// missing session is a no-op.
func (m *SessionManager) InvalidateSession(ctx context.Context, sessionID string) error {
	if err := m.store.Delete(ctx, sessionID); err != nil {
		m.logger.Error("Failed to invalidate session",
			zap.Error(err),
			zap.String("session_id", sessionID),
		)
		return err
	}

	m.publishEvent(ctx, kafka.EventSessionInvalidated, sessionID, map[string]string{
		"session_id": sessionID,
	})
	m.logger.Info("Invalidated session", zap.String("session_id", sessionID))
	return nil
}

// InvalidateAllUserSessions removes every session of the user: the "log out
// everywhere" operation used on password change or forced de-authorization.
func (m *SessionManager) InvalidateAllUserSessions(ctx context.Context, userID uuid.UUID) error {
	sessions, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		return err
	}

	for _, session := range sessions {
		if err := m.store.Delete(ctx, session.ID.String()); err != nil {
			m.logger.Error("Failed to invalidate user session",
				zap.Error(err),
				zap.String("session_id", session.ID.String()),
				zap.String("user_id", userID.String()),
			)
			return err
		}
	}

	m.publishEvent(ctx, kafka.EventAllSessionsInvalidated, userID.String(), map[string]string{
		"user_id": userID.String(),
	})
	m.logger.Info("Invalidated all sessions for user",
		zap.String("user_id", userID.String()),
		zap.Int("count", len(sessions)),
	)
	return nil
}

// GetUserSessions returns the user's sessions, most recently active first.
func (m *SessionManager) GetUserSessions(ctx context.Context, userID uuid.UUID) ([]*models.AuthSession, error) {
	sessions, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActivity.After(sessions[j].LastActivity)
	})
	return sessions, nil
}

// RevokeToken blacklists the token's jti for its remaining lifetime. Returns
// false when the token carries no jti or is already expired; such a token
// cannot authenticate anyway.
func (m *SessionManager) RevokeToken(ctx context.Context, tokenString string) (bool, error) {
	jti := m.tokens.ExtractJTI(tokenString)
	if jti == "" {
		return false, nil
	}

	expiry := m.tokens.ExtractExpiry(tokenString)
	if time.Until(expiry) <= 0 {
		return false, nil
	}

	if err := m.revocations.Revoke(ctx, jti, expiry); err != nil {
		return false, err
	}

	metrics.TokensRevokedTotal.Inc()
	m.logger.Debug("Revoked token", zap.String("jti", jti))
	return true, nil
}

// IsTokenRevoked checks the revocation list for a token id.
func (m *SessionManager) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	return m.revocations.IsRevoked(ctx, jti)
}

// UpdateSessionActivity bumps lastActivity and, when sliding expiration is
// enabled, pushes the expiry forward by the default duration.
func (m *SessionManager) UpdateSessionActivity(ctx context.Context, sessionID string) error {
	session, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	session.LastActivity = now
	if m.sessionCfg.EnableSessionExtension {
		session.ExpiresAt = now.Add(m.sessionCfg.DefaultDuration)
	}

	return m.store.Save(ctx, session, nil)
}

// UpdateSessionMetadata replaces the metadata map wholesale and bumps
// lastActivity.
func (m *SessionManager) UpdateSessionMetadata(ctx context.Context, sessionID string, metadata map[string]string) error {
	session, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	session.Metadata = metadata
	session.LastActivity = time.Now().UTC()

	return m.store.Save(ctx, session, nil)
}

// CleanupExpiredSessions sweeps the store and invalidates every session past
// its expiry. Individual failures are logged and skipped; the sweep always
// runs to completion. Returns the number of sessions removed.
func (m *SessionManager) CleanupExpiredSessions(ctx context.Context) (int, error) {
	sessions, err := m.store.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	cleaned := 0
	for _, session := range sessions {
		if session.ExpiresAt.After(now) {
			continue
		}
		if err := m.store.Delete(ctx, session.ID.String()); err != nil {
			m.logger.Warn("Failed to remove expired session",
				zap.Error(err),
				zap.String("session_id", session.ID.String()),
			)
			continue
		}
		cleaned++
	}

	if cleaned > 0 {
		metrics.ExpiredSessionsCleanedTotal.Add(float64(cleaned))
		m.logger.Info("Expired sessions cleanup completed", zap.Int("cleaned_count", cleaned))
	}
	return cleaned, nil
}

func (m *SessionManager) issueTokenPair(session *models.AuthSession) (*models.SessionToken, error) {
	accessToken, _, accessExpiry, err := m.tokens.Issue(session)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}

	refreshToken, err := m.tokens.NewRefreshToken()
	if err != nil {
		return nil, err
	}

	return &models.SessionToken{
		AccessToken:        accessToken,
		RefreshToken:       refreshToken,
		AccessTokenExpiry:  accessExpiry,
		RefreshTokenExpiry: time.Now().UTC().Add(m.jwtCfg.RefreshTokenTTL),
		SessionID:          session.ID.String(),
	}, nil
}

// enforceSessionLimit evicts oldest-by-lastActivity sessions until the user is
// back within the configured maximum.
func (m *SessionManager) enforceSessionLimit(ctx context.Context, userID uuid.UUID) error {
	if m.sessionCfg.MaxConcurrentSessions <= 0 {
		return nil
	}

	sessions, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	excess := len(sessions) - m.sessionCfg.MaxConcurrentSessions
	if excess <= 0 {
		return nil
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActivity.Before(sessions[j].LastActivity)
	})

	for _, session := range sessions[:excess] {
		if err := m.InvalidateSession(ctx, session.ID.String()); err != nil {
			return err
		}
		metrics.SessionEvictionsTotal.Inc()
		m.logger.Info("Evicted session over concurrency limit",
			zap.String("session_id", session.ID.String()),
			zap.String("user_id", userID.String()),
		)
	}
	return nil
}

func (m *SessionManager) bumpActivityAsync(ctx context.Context, sessionID string) {
	if m.activity != nil {
		m.activity.Enqueue(sessionID)
		return
	}
	// No sink configured: apply inline but stay best-effort.
	if err := m.UpdateSessionActivity(ctx, sessionID); err != nil {
		m.logger.Warn("Failed to update session activity",
			zap.Error(err),
			zap.String("session_id", sessionID),
		)
	}
}

func (m *SessionManager) publishEvent(ctx context.Context, eventType, key string, payload interface{}) {
	if m.events == nil {
		return
	}
	if err := m.events.PublishSessionEvent(ctx, eventType, key, payload); err != nil {
		m.logger.Error("Failed to publish session event",
			zap.Error(err),
			zap.String("event_type", eventType),
		)
	}
}

func (m *SessionManager) recordValidation(result models.SessionValidationResult) models.SessionValidationResult {
	metrics.SessionValidationsTotal.WithLabelValues(string(result.State)).Inc()
	return result
}

func verifyFailureReason(err error) string {
	switch {
	case errors.Is(err, domainErrors.ErrExpiredToken):
		return "access token expired"
	case errors.Is(err, domainErrors.ErrInvalidIssuer):
		return "invalid token issuer"
	case errors.Is(err, domainErrors.ErrInvalidAudience):
		return "invalid token audience"
	default:
		return "invalid access token"
	}
}
