package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultDeviceID is assigned to sessions created without an explicit device identifier.
const DefaultDeviceID = "default"

// AuthSession represents one authenticated device/browser session. It is the
// unit of storage in the session store: one record per login, keyed by ID.
type AuthSession struct {
	ID           uuid.UUID         `json:"id"`
	UserID       uuid.UUID         `json:"user_id"`
	UserEmail    string            `json:"user_email"`
	UserName     string            `json:"user_name"`
	Roles        []string          `json:"roles"`
	DeviceID     string            `json:"device_id"`
	IPAddress    string            `json:"ip_address,omitempty"`
	UserAgent    string            `json:"user_agent,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	LastActivity time.Time         `json:"last_activity"`
	ExpiresAt    time.Time         `json:"expires_at"`
	IsActive     bool              `json:"is_active"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// IsExpired reports whether the session's absolute expiry has passed.
func (s *AuthSession) IsExpired() bool {
	return !s.ExpiresAt.After(time.Now().UTC())
}

// IsValid reports whether the session may still authenticate requests.
func (s *AuthSession) IsValid() bool {
	return s.IsActive && !s.IsExpired()
}

// CreateSessionRequest carries caller-supplied data for a new session.
// SessionDuration of zero means "use the configured default".
type CreateSessionRequest struct {
	UserID          uuid.UUID         `json:"user_id"`
	UserEmail       string            `json:"user_email"`
	UserName        string            `json:"user_name"`
	Roles           []string          `json:"roles"`
	DeviceID        string            `json:"device_id"`
	IPAddress       string            `json:"ip_address"`
	UserAgent       string            `json:"user_agent"`
	SessionDuration time.Duration     `json:"session_duration"`
	Metadata        map[string]string `json:"metadata"`
}
