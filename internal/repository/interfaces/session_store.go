package interfaces

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/marketplace-platform/auth-service/internal/domain/models"
)

// SessionStore is the persistence boundary for session records and refresh
// tokens. All shared state lives behind this interface; business logic never
// touches a concrete client. The production implementation is Redis-backed,
// tests use an in-memory one.
type SessionStore interface {
	// Save writes the session record and, when token is non-nil, the refresh
	// token alongside it in a single batched operation. Any single failure is
	// returned as a write error; no partial-success semantics are attempted.
	Save(ctx context.Context, session *models.AuthSession, token *models.SessionToken) error

	// Get returns the session or errors.ErrSessionNotFound.
	Get(ctx context.Context, sessionID string) (*models.AuthSession, error)

	// Delete removes the session, its refresh token, and index entries.
	// Deleting a missing session is a no-op.
	Delete(ctx context.Context, sessionID string) error

	// ConsumeRefreshToken atomically resolves a refresh token to its session id
	// and burns it, so a second presentation of the same value fails with
	// errors.ErrInvalidRefreshToken regardless of concurrency.
	ConsumeRefreshToken(ctx context.Context, refreshToken string) (string, error)

	// ListByUser returns all live sessions for a user, unordered.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.AuthSession, error)

	// ListAll returns every stored session. Records that fail to deserialize
	// are skipped, not fatal; intended for background sweeps only.
	ListAll(ctx context.Context) ([]*models.AuthSession, error)
}

// RevocationList tracks revoked token ids (jti) until their natural expiry.
type RevocationList interface {
	// Revoke marks the jti as revoked until expiry. A non-positive remaining
	// lifetime is a no-op: the token already fails expiry validation.
	Revoke(ctx context.Context, jti string, expiry time.Time) error

	// IsRevoked reports whether the jti has been revoked.
	IsRevoked(ctx context.Context, jti string) (bool, error)
}
