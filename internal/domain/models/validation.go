package models

// ValidationState classifies the outcome of validating an access token or
// session id from the caller's perspective.
type ValidationState string

const (
	// StateValid - session is authenticated and comfortably inside its lifetime.
	StateValid ValidationState = "valid"
	// StateNeedsRefresh - still authenticated, but inside the refresh-threshold
	// window before expiry; the caller should proactively rotate tokens.
	StateNeedsRefresh ValidationState = "needs_refresh"
	// StateExpired - the session's expiry has passed.
	StateExpired ValidationState = "expired"
	// StateInvalid - not found, inactive, revoked, or the token failed verification.
	StateInvalid ValidationState = "invalid"
)

// SessionValidationResult is returned by SessionManager.ValidateSession and
// ValidateSessionByID.
type SessionValidationResult struct {
	State        ValidationState `json:"state"`
	Session      *AuthSession    `json:"session,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// IsValid reports whether the caller may treat the request as authenticated.
// A needs-refresh result is still authenticated.
func (r SessionValidationResult) IsValid() bool {
	return r.State == StateValid || r.State == StateNeedsRefresh
}

// ValidationSuccess builds a result for a healthy session.
func ValidationSuccess(session *AuthSession) SessionValidationResult {
	return SessionValidationResult{State: StateValid, Session: session}
}

// ValidationRefreshRequired builds a result for a session nearing expiry.
func ValidationRefreshRequired(session *AuthSession) SessionValidationResult {
	return SessionValidationResult{State: StateNeedsRefresh, Session: session}
}

// ValidationExpired builds a result for a session past its expiry.
func ValidationExpired() SessionValidationResult {
	return SessionValidationResult{State: StateExpired, ErrorMessage: "session has expired"}
}

// ValidationFailed builds a result for any non-recoverable failure.
func ValidationFailed(message string) SessionValidationResult {
	return SessionValidationResult{State: StateInvalid, ErrorMessage: message}
}
