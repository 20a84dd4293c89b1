package models

import "time"

// SessionToken pairs a freshly issued access token with its refresh token.
// It is handed to the caller exactly once per creation or rotation and never
// stored verbatim: the store keeps the refresh token value server-side, the
// access token is never persisted at all.
type SessionToken struct {
	AccessToken        string    `json:"access_token"`
	RefreshToken       string    `json:"refresh_token"`
	AccessTokenExpiry  time.Time `json:"access_token_expiry"`
	RefreshTokenExpiry time.Time `json:"refresh_token_expiry"`
	SessionID          string    `json:"session_id"`
}
