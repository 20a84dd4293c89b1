package errors

import "errors"

var (
	// Token errors.
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredToken        = errors.New("token has expired")
	ErrRevokedToken        = errors.New("token has been revoked")
	ErrInvalidIssuer       = errors.New("invalid token issuer")
	ErrInvalidAudience     = errors.New("invalid token audience")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// Session errors.
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionInactive = errors.New("session is inactive")
	ErrSessionExpired  = errors.New("session has expired")
)
