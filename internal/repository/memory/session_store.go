// Package memory provides an in-memory SessionStore and RevocationList for
// tests and single-process development. Unlike the Redis store there is no
// TTL reaper: expired session records stay readable until validation or a
// cleanup sweep deletes them, and Save accepts records in any state. Refresh
// token consumption does honor the token's own expiry.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	domainErrors "github.com/marketplace-platform/auth-service/internal/domain/errors"
	"github.com/marketplace-platform/auth-service/internal/domain/models"
	"github.com/marketplace-platform/auth-service/internal/repository/interfaces"
)

var (
	_ interfaces.SessionStore   = (*SessionStore)(nil)
	_ interfaces.RevocationList = (*SessionStore)(nil)
)

type refreshRecord struct {
	sessionID string
	expiresAt time.Time
}

// SessionStore keeps all records in process memory guarded by one mutex.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.AuthSession
	refresh  map[string]string        // sessionID -> token value
	lookup   map[string]refreshRecord // token value -> session
	revoked  map[string]time.Time     // jti -> expiry
}

// NewSessionStore creates an empty in-memory store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*models.AuthSession),
		refresh:  make(map[string]string),
		lookup:   make(map[string]refreshRecord),
		revoked:  make(map[string]time.Time),
	}
}

func (s *SessionStore) Save(_ context.Context, session *models.AuthSession, token *models.SessionToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *session
	if session.Roles != nil {
		cp.Roles = append([]string(nil), session.Roles...)
	}
	if session.Metadata != nil {
		cp.Metadata = make(map[string]string, len(session.Metadata))
		for k, v := range session.Metadata {
			cp.Metadata[k] = v
		}
	}
	s.sessions[session.ID.String()] = &cp

	if token != nil {
		s.refresh[session.ID.String()] = token.RefreshToken
		s.lookup[token.RefreshToken] = refreshRecord{
			sessionID: session.ID.String(),
			expiresAt: token.RefreshTokenExpiry,
		}
	}
	return nil
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (*models.AuthSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, domainErrors.ErrSessionNotFound
	}
	cp := *session
	return &cp, nil
}

func (s *SessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	if token, ok := s.refresh[sessionID]; ok {
		delete(s.lookup, token)
		delete(s.refresh, sessionID)
	}
	return nil
}

func (s *SessionStore) ConsumeRefreshToken(_ context.Context, refreshToken string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lookup[refreshToken]
	if !ok || !rec.expiresAt.After(time.Now().UTC()) {
		return "", domainErrors.ErrInvalidRefreshToken
	}

	delete(s.lookup, refreshToken)
	if s.refresh[rec.sessionID] != refreshToken {
		return "", domainErrors.ErrInvalidRefreshToken
	}
	return rec.sessionID, nil
}

func (s *SessionStore) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.AuthSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sessions []*models.AuthSession
	for _, session := range s.sessions {
		if session.UserID == userID {
			cp := *session
			sessions = append(sessions, &cp)
		}
	}
	return sessions, nil
}

func (s *SessionStore) ListAll(_ context.Context) ([]*models.AuthSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]*models.AuthSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		cp := *session
		sessions = append(sessions, &cp)
	}
	return sessions, nil
}

func (s *SessionStore) Revoke(_ context.Context, jti string, expiry time.Time) error {
	if time.Until(expiry) <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[jti] = expiry
	return nil
}

func (s *SessionStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiry, ok := s.revoked[jti]
	return ok && expiry.After(time.Now().UTC()), nil
}
