package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	domainErrors "github.com/marketplace-platform/auth-service/internal/domain/errors"
	"github.com/marketplace-platform/auth-service/internal/domain/models"
	"github.com/marketplace-platform/auth-service/internal/repository/interfaces"
)

var (
	_ interfaces.SessionStore   = (*SessionStore)(nil)
	_ interfaces.RevocationList = (*SessionStore)(nil)
)

// SessionStore persists sessions and refresh tokens in Redis. Key scheme,
// namespaced by a configurable prefix:
//
//	{prefix}session:{sessionId}        JSON session record, TTL = expiry - now
//	{prefix}refresh:{sessionId}        refresh token value, TTL = refresh expiry - now
//	{prefix}refresh:lookup:{token}     reverse index token -> session id, same TTL
//	{prefix}user:{userId}:sessions     SET of session ids for the user
//	{prefix}revoked:{jti}              revocation marker, TTL = remaining token lifetime
//
// The reverse index replaces a full key-space scan on refresh, and the per-user
// set replaces a scan on listing. Both are maintained in the same pipeline as
// the primary key.
type SessionStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewSessionStore creates a Redis-backed session store.
func NewSessionStore(client *redis.Client, keyPrefix string, logger *zap.Logger) *SessionStore {
	return &SessionStore{
		client: client,
		prefix: keyPrefix,
		logger: logger,
	}
}

func (s *SessionStore) sessionKey(sessionID string) string {
	return fmt.Sprintf("%ssession:%s", s.prefix, sessionID)
}

func (s *SessionStore) refreshKey(sessionID string) string {
	return fmt.Sprintf("%srefresh:%s", s.prefix, sessionID)
}

func (s *SessionStore) refreshLookupKey(token string) string {
	return fmt.Sprintf("%srefresh:lookup:%s", s.prefix, token)
}

func (s *SessionStore) userSessionsKey(userID uuid.UUID) string {
	return fmt.Sprintf("%suser:%s:sessions", s.prefix, userID.String())
}

func (s *SessionStore) revokedKey(jti string) string {
	return fmt.Sprintf("%srevoked:%s", s.prefix, jti)
}

// Save writes the session record, the user index entry, and optionally the
// refresh token pair in one transactional pipeline.
func (s *SessionStore) Save(ctx context.Context, session *models.AuthSession, token *models.SessionToken) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", session.ID, err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session %s is already expired", session.ID)
	}

	userKey := s.userSessionsKey(session.UserID)
	indexTTL := ttl

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.sessionKey(session.ID.String()), data, ttl)
		pipe.SAdd(ctx, userKey, session.ID.String())

		if token != nil {
			refreshTTL := time.Until(token.RefreshTokenExpiry)
			if refreshTTL > 0 {
				pipe.Set(ctx, s.refreshKey(session.ID.String()), token.RefreshToken, refreshTTL)
				pipe.Set(ctx, s.refreshLookupKey(token.RefreshToken), session.ID.String(), refreshTTL)
				if refreshTTL > indexTTL {
					indexTTL = refreshTTL
				}
			}
		}

		// The index must outlive the longest-lived key it points at. Stale
		// members are healed on read in ListByUser.
		pipe.Expire(ctx, userKey, indexTTL)
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to save session",
			zap.Error(err),
			zap.String("session_id", session.ID.String()),
		)
		return fmt.Errorf("failed to save session %s: %w", session.ID, err)
	}

	return nil
}

// Get returns the session record or domainErrors.ErrSessionNotFound.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*models.AuthSession, error) {
	data, err := s.client.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domainErrors.ErrSessionNotFound
		}
		s.logger.Error("Failed to get session", zap.Error(err), zap.String("session_id", sessionID))
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}

	var session models.AuthSession
	if err := json.Unmarshal(data, &session); err != nil {
		s.logger.Error("Failed to unmarshal session data", zap.Error(err), zap.String("session_id", sessionID))
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", sessionID, err)
	}

	return &session, nil
}

// Delete removes the session, its refresh token, the reverse lookup entry, and
// the user index membership. Missing keys are not an error.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	session, err := s.Get(ctx, sessionID)
	if err != nil && !errors.Is(err, domainErrors.ErrSessionNotFound) {
		return err
	}

	refreshToken, err := s.client.Get(ctx, s.refreshKey(sessionID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		s.logger.Error("Failed to read refresh token for deletion",
			zap.Error(err),
			zap.String("session_id", sessionID),
		)
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.sessionKey(sessionID))
		pipe.Del(ctx, s.refreshKey(sessionID))
		if refreshToken != "" {
			pipe.Del(ctx, s.refreshLookupKey(refreshToken))
		}
		if session != nil {
			pipe.SRem(ctx, s.userSessionsKey(session.UserID), sessionID)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to delete session", zap.Error(err), zap.String("session_id", sessionID))
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}

	return nil
}

// ConsumeRefreshToken resolves the refresh token to its session id and deletes
// the lookup entry in one GETDEL, so only one concurrent caller can win a
// rotation with the same token value.
func (s *SessionStore) ConsumeRefreshToken(ctx context.Context, refreshToken string) (string, error) {
	sessionID, err := s.client.GetDel(ctx, s.refreshLookupKey(refreshToken)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domainErrors.ErrInvalidRefreshToken
		}
		s.logger.Error("Failed to consume refresh token", zap.Error(err))
		return "", fmt.Errorf("failed to consume refresh token: %w", err)
	}

	// The lookup entry could outlive an overwritten primary key after a crash
	// mid-save. Honor only tokens that still match the primary.
	current, err := s.client.Get(ctx, s.refreshKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domainErrors.ErrInvalidRefreshToken
		}
		return "", fmt.Errorf("failed to verify refresh token: %w", err)
	}
	if current != refreshToken {
		return "", domainErrors.ErrInvalidRefreshToken
	}

	return sessionID, nil
}

// ListByUser returns all sessions currently recorded for the user. Index
// members whose session key has expired are removed as they are encountered.
func (s *SessionStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.AuthSession, error) {
	userKey := s.userSessionsKey(userID)
	sessionIDs, err := s.client.SMembers(ctx, userKey).Result()
	if err != nil {
		s.logger.Error("Failed to read user sessions index", zap.Error(err), zap.String("user_id", userID.String()))
		return nil, fmt.Errorf("failed to list sessions for user %s: %w", userID, err)
	}

	sessions := make([]*models.AuthSession, 0, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		session, err := s.Get(ctx, sessionID)
		if err != nil {
			if errors.Is(err, domainErrors.ErrSessionNotFound) {
				// Session key expired out from under the index.
				s.client.SRem(ctx, userKey, sessionID)
				continue
			}
			return nil, err
		}
		if session.UserID == userID {
			sessions = append(sessions, session)
		}
	}

	return sessions, nil
}

// ListAll walks every session key with SCAN. Per-record failures are logged
// and skipped so one corrupt entry cannot abort a cleanup sweep.
func (s *SessionStore) ListAll(ctx context.Context) ([]*models.AuthSession, error) {
	var sessions []*models.AuthSession

	iter := s.client.Scan(ctx, 0, s.prefix+"session:*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				s.logger.Warn("Failed to read session during scan", zap.Error(err), zap.String("key", iter.Val()))
			}
			continue
		}

		var session models.AuthSession
		if err := json.Unmarshal(data, &session); err != nil {
			s.logger.Warn("Skipping undecodable session record", zap.Error(err), zap.String("key", iter.Val()))
			continue
		}
		sessions = append(sessions, &session)
	}
	if err := iter.Err(); err != nil {
		s.logger.Error("Failed to scan session keys", zap.Error(err))
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}

	return sessions, nil
}

// Revoke writes the revocation marker with a TTL equal to the token's
// remaining lifetime. Already-expired tokens are a no-op.
func (s *SessionStore) Revoke(ctx context.Context, jti string, expiry time.Time) error {
	ttl := time.Until(expiry)
	if ttl <= 0 {
		return nil
	}

	if err := s.client.Set(ctx, s.revokedKey(jti), "revoked", ttl).Err(); err != nil {
		s.logger.Error("Failed to revoke token", zap.Error(err), zap.String("jti", jti))
		return fmt.Errorf("failed to revoke token %s: %w", jti, err)
	}
	return nil
}

// IsRevoked checks for the revocation marker.
func (s *SessionStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	exists, err := s.client.Exists(ctx, s.revokedKey(jti)).Result()
	if err != nil {
		s.logger.Error("Failed to check token revocation", zap.Error(err), zap.String("jti", jti))
		return false, fmt.Errorf("failed to check revocation for %s: %w", jti, err)
	}
	return exists > 0, nil
}
