package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marketplace-platform/auth-service/internal/config"
	domainErrors "github.com/marketplace-platform/auth-service/internal/domain/errors"
	"github.com/marketplace-platform/auth-service/internal/domain/models"
	"github.com/marketplace-platform/auth-service/internal/repository/memory"
)

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		DefaultDuration:            24 * time.Hour,
		RefreshThreshold:           30 * time.Minute,
		ActivityExtensionThreshold: 15 * time.Minute,
		MaxConcurrentSessions:      5,
		EnableSessionExtension:     true,
	}
}

func newTestManager(t *testing.T, sessionCfg config.SessionConfig) (*SessionManager, *memory.SessionStore) {
	t.Helper()

	store := memory.NewSessionStore()
	tokens, err := NewTokenService(testJWTConfig())
	require.NoError(t, err)

	manager := NewSessionManager(store, store, tokens, nil, testJWTConfig(), sessionCfg, zap.NewNop())
	return manager, store
}

func createRequest(userID uuid.UUID) models.CreateSessionRequest {
	return models.CreateSessionRequest{
		UserID:    userID,
		UserEmail: "buyer@example.com",
		UserName:  "buyer",
		Roles:     []string{"user"},
		DeviceID:  "device-1",
		IPAddress: "203.0.113.7",
		UserAgent: "test-agent",
	}
}

func TestSessionManager_CreateThenValidateRoundTrip(t *testing.T) {
	manager, _ := newTestManager(t, testSessionConfig())
	ctx := context.Background()
	userID := uuid.New()

	token, err := manager.CreateSession(ctx, createRequest(userID))
	require.NoError(t, err)
	require.NotEmpty(t, token.AccessToken)
	require.NotEmpty(t, token.RefreshToken)
	require.NotEmpty(t, token.SessionID)

	result := manager.ValidateSession(ctx, token.AccessToken)
	require.Equal(t, models.StateValid, result.State)
	require.NotNil(t, result.Session)
	assert.Equal(t, userID, result.Session.UserID)
	assert.Equal(t, []string{"user"}, result.Session.Roles)
	assert.Equal(t, token.SessionID, result.Session.ID.String())
	assert.True(t, result.IsValid())
}

func TestSessionManager_DefaultDurationAndDeviceID(t *testing.T) {
	manager, store := newTestManager(t, testSessionConfig())
	ctx := context.Background()

	req := createRequest(uuid.New())
	req.DeviceID = ""
	req.SessionDuration = 0

	token, err := manager.CreateSession(ctx, req)
	require.NoError(t, err)

	session, err := store.Get(ctx, token.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultDeviceID, session.DeviceID)
	assert.WithinDuration(t, time.Now().UTC().Add(24*time.Hour), session.ExpiresAt, 5*time.Second)
	assert.True(t, session.ExpiresAt.After(session.CreatedAt))
}

func TestSessionManager_ValidateRejectsGarbageToken(t *testing.T) {
	manager, _ := newTestManager(t, testSessionConfig())

	result := manager.ValidateSession(context.Background(), "garbage")
	assert.Equal(t, models.StateInvalid, result.State)
	assert.False(t, result.IsValid())
}

func TestSessionManager_ExpiredSessionIsInvalidatedOnValidate(t *testing.T) {
	manager, store := newTestManager(t, testSessionConfig())
	ctx := context.Background()

	token, err := manager.CreateSession(ctx, createRequest(uuid.New()))
	require.NoError(t, err)

	// Age the stored record past its expiry.
	session, err := store.Get(ctx, token.SessionID)
	require.NoError(t, err)
	session.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, store.Save(ctx, session, nil))

	result := manager.ValidateSessionByID(ctx, token.SessionID)
	assert.Equal(t, models.StateExpired, result.State)

	// Expired validation deletes the session as a side effect.
	_, err = store.Get(ctx, token.SessionID)
	assert.ErrorIs(t, err, domainErrors.ErrSessionNotFound)
}

func TestSessionManager_RefreshThresholdWindow(t *testing.T) {
	cfg := testSessionConfig()
	cfg.RefreshThreshold = 5 * time.Minute
	cfg.ActivityExtensionThreshold = time.Hour
	manager, store := newTestManager(t, cfg)
	ctx := context.Background()

	token, err := manager.CreateSession(ctx, createRequest(uuid.New()))
	require.NoError(t, err)
	session, err := store.Get(ctx, token.SessionID)
	require.NoError(t, err)

	// 12 minutes remaining: comfortably outside the 5 minute threshold.
	session.ExpiresAt = time.Now().UTC().Add(12 * time.Minute)
	require.NoError(t, store.Save(ctx, session, nil))
	assert.Equal(t, models.StateValid, manager.ValidateSessionByID(ctx, token.SessionID).State)

	// 4 minutes remaining: inside the threshold, still authenticated.
	session.ExpiresAt = time.Now().UTC().Add(4 * time.Minute)
	require.NoError(t, store.Save(ctx, session, nil))
	result := manager.ValidateSessionByID(ctx, token.SessionID)
	assert.Equal(t, models.StateNeedsRefresh, result.State)
	assert.True(t, result.IsValid())
}

func TestSessionManager_RevokedTokenFailsWhileSessionSurvives(t *testing.T) {
	manager, _ := newTestManager(t, testSessionConfig())
	ctx := context.Background()

	token, err := manager.CreateSession(ctx, createRequest(uuid.New()))
	require.NoError(t, err)
	require.Equal(t, models.StateValid, manager.ValidateSession(ctx, token.AccessToken).State)

	revoked, err := manager.RevokeToken(ctx, token.AccessToken)
	require.NoError(t, err)
	assert.True(t, revoked)

	result := manager.ValidateSession(ctx, token.AccessToken)
	assert.Equal(t, models.StateInvalid, result.State)

	// Only the token id is blacklisted; the session itself stays valid.
	assert.Equal(t, models.StateValid, manager.ValidateSessionByID(ctx, token.SessionID).State)
}

func TestSessionManager_RevokeTokenNoOpCases(t *testing.T) {
	manager, _ := newTestManager(t, testSessionConfig())
	ctx := context.Background()

	revoked, err := manager.RevokeToken(ctx, "not-a-token")
	require.NoError(t, err)
	assert.False(t, revoked, "token without extractable jti is not revocable")

	expiredCfg := testJWTConfig()
	expiredCfg.AccessTokenTTL = -time.Minute
	expiredTokens, err := NewTokenService(expiredCfg)
	require.NoError(t, err)
	tokenString, _, _, err := expiredTokens.Issue(testSession())
	require.NoError(t, err)

	revoked, err = manager.RevokeToken(ctx, tokenString)
	require.NoError(t, err)
	assert.False(t, revoked, "already expired token is not revocable")
}

func TestSessionManager_RefreshTokenRotationIsSingleUse(t *testing.T) {
	manager, _ := newTestManager(t, testSessionConfig())
	ctx := context.Background()

	token, err := manager.CreateSession(ctx, createRequest(uuid.New()))
	require.NoError(t, err)

	rotated, err := manager.RefreshToken(ctx, token.RefreshToken)
	require.NoError(t, err)
	require.NotNil(t, rotated)
	assert.Equal(t, token.SessionID, rotated.SessionID)
	assert.NotEqual(t, token.RefreshToken, rotated.RefreshToken)
	assert.NotEqual(t, token.AccessToken, rotated.AccessToken)

	// The superseded refresh token must fail on second presentation.
	_, err = manager.RefreshToken(ctx, token.RefreshToken)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidRefreshToken)

	// The replacement works exactly once as well.
	again, err := manager.RefreshToken(ctx, rotated.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, token.SessionID, again.SessionID)
}

func TestSessionManager_RefreshTokenRejectsUnknownAndExpired(t *testing.T) {
	manager, store := newTestManager(t, testSessionConfig())
	ctx := context.Background()

	_, err := manager.RefreshToken(ctx, "never-issued")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidRefreshToken)

	token, err := manager.CreateSession(ctx, createRequest(uuid.New()))
	require.NoError(t, err)
	session, err := store.Get(ctx, token.SessionID)
	require.NoError(t, err)
	session.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, store.Save(ctx, session, nil))

	_, err = manager.RefreshToken(ctx, token.RefreshToken)
	assert.ErrorIs(t, err, domainErrors.ErrSessionExpired)
}

func TestSessionManager_SessionLimitEvictsLeastRecentlyActive(t *testing.T) {
	cfg := testSessionConfig()
	cfg.MaxConcurrentSessions = 2
	manager, store := newTestManager(t, cfg)
	ctx := context.Background()
	userID := uuid.New()

	setActivity := func(sessionID string, at time.Time) {
		session, err := store.Get(ctx, sessionID)
		require.NoError(t, err)
		session.LastActivity = at
		require.NoError(t, store.Save(ctx, session, nil))
	}

	base := time.Now().UTC().Add(-time.Hour)

	tokenA, err := manager.CreateSession(ctx, createRequest(userID))
	require.NoError(t, err)
	setActivity(tokenA.SessionID, base)

	tokenB, err := manager.CreateSession(ctx, createRequest(userID))
	require.NoError(t, err)
	setActivity(tokenB.SessionID, base.Add(time.Minute))

	tokenC, err := manager.CreateSession(ctx, createRequest(userID))
	require.NoError(t, err)

	sessions, err := manager.GetUserSessions(ctx, userID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	ids := map[string]bool{}
	for _, s := range sessions {
		ids[s.ID.String()] = true
	}
	assert.False(t, ids[tokenA.SessionID], "session A was least recently active and must be evicted")
	assert.True(t, ids[tokenB.SessionID])
	assert.True(t, ids[tokenC.SessionID], "the newly created session is never evicted by its own creation")
}

func TestSessionManager_InvalidateSessionIsIdempotent(t *testing.T) {
	manager, _ := newTestManager(t, testSessionConfig())
	ctx := context.Background()

	token, err := manager.CreateSession(ctx, createRequest(uuid.New()))
	require.NoError(t, err)

	require.NoError(t, manager.InvalidateSession(ctx, token.SessionID))
	require.NoError(t, manager.InvalidateSession(ctx, token.SessionID))

	result := manager.ValidateSession(ctx, token.AccessToken)
	assert.Equal(t, models.StateInvalid, result.State)
}

func TestSessionManager_InvalidateAllUserSessions(t *testing.T) {
	manager, _ := newTestManager(t, testSessionConfig())
	ctx := context.Background()
	userID := uuid.New()
	otherUser := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := manager.CreateSession(ctx, createRequest(userID))
		require.NoError(t, err)
	}
	otherToken, err := manager.CreateSession(ctx, createRequest(otherUser))
	require.NoError(t, err)

	require.NoError(t, manager.InvalidateAllUserSessions(ctx, userID))

	sessions, err := manager.GetUserSessions(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	// Other users are untouched.
	assert.Equal(t, models.StateValid, manager.ValidateSessionByID(ctx, otherToken.SessionID).State)
}

func TestSessionManager_GetUserSessionsSortedByActivity(t *testing.T) {
	cfg := testSessionConfig()
	cfg.MaxConcurrentSessions = 10
	manager, store := newTestManager(t, cfg)
	ctx := context.Background()
	userID := uuid.New()

	base := time.Now().UTC().Add(-time.Hour)
	var ids []string
	for i := 0; i < 3; i++ {
		token, err := manager.CreateSession(ctx, createRequest(userID))
		require.NoError(t, err)
		session, err := store.Get(ctx, token.SessionID)
		require.NoError(t, err)
		session.LastActivity = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.Save(ctx, session, nil))
		ids = append(ids, token.SessionID)
	}

	sessions, err := manager.GetUserSessions(ctx, userID)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, ids[2], sessions[0].ID.String(), "most recently active first")
	assert.Equal(t, ids[0], sessions[2].ID.String())
}

func TestSessionManager_UpdateSessionActivitySlidingExpiration(t *testing.T) {
	cfg := testSessionConfig()
	cfg.EnableSessionExtension = true
	manager, store := newTestManager(t, cfg)
	ctx := context.Background()

	token, err := manager.CreateSession(ctx, createRequest(uuid.New()))
	require.NoError(t, err)

	session, err := store.Get(ctx, token.SessionID)
	require.NoError(t, err)
	session.ExpiresAt = time.Now().UTC().Add(time.Hour)
	session.LastActivity = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.Save(ctx, session, nil))

	require.NoError(t, manager.UpdateSessionActivity(ctx, token.SessionID))

	updated, err := store.Get(ctx, token.SessionID)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), updated.LastActivity, 5*time.Second)
	assert.WithinDuration(t, time.Now().UTC().Add(cfg.DefaultDuration), updated.ExpiresAt, 5*time.Second)
}

func TestSessionManager_UpdateSessionActivityWithoutExtension(t *testing.T) {
	cfg := testSessionConfig()
	cfg.EnableSessionExtension = false
	manager, store := newTestManager(t, cfg)
	ctx := context.Background()

	token, err := manager.CreateSession(ctx, createRequest(uuid.New()))
	require.NoError(t, err)
	before, err := store.Get(ctx, token.SessionID)
	require.NoError(t, err)

	require.NoError(t, manager.UpdateSessionActivity(ctx, token.SessionID))

	after, err := store.Get(ctx, token.SessionID)
	require.NoError(t, err)
	assert.Equal(t, before.ExpiresAt, after.ExpiresAt, "expiry is fixed when extension is disabled")
	assert.True(t, after.LastActivity.After(before.LastActivity) || after.LastActivity.Equal(before.LastActivity))
}

func TestSessionManager_UpdateSessionMetadataReplacesWholesale(t *testing.T) {
	manager, store := newTestManager(t, testSessionConfig())
	ctx := context.Background()

	req := createRequest(uuid.New())
	req.Metadata = map[string]string{"locale": "uk-UA", "theme": "dark"}
	token, err := manager.CreateSession(ctx, req)
	require.NoError(t, err)

	require.NoError(t, manager.UpdateSessionMetadata(ctx, token.SessionID, map[string]string{"plan": "pro"}))

	session, err := store.Get(ctx, token.SessionID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"plan": "pro"}, session.Metadata)
}

func TestSessionManager_RefreshSessionExtendsUnconditionally(t *testing.T) {
	manager, store := newTestManager(t, testSessionConfig())
	ctx := context.Background()

	token, err := manager.CreateSession(ctx, createRequest(uuid.New()))
	require.NoError(t, err)

	session, err := store.Get(ctx, token.SessionID)
	require.NoError(t, err)
	session.ExpiresAt = time.Now().UTC().Add(time.Minute)
	require.NoError(t, store.Save(ctx, session, nil))

	require.NoError(t, manager.RefreshSession(ctx, token.SessionID))

	updated, err := store.Get(ctx, token.SessionID)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC().Add(24*time.Hour), updated.ExpiresAt, 5*time.Second)
}

func TestSessionManager_CleanupExpiredSessions(t *testing.T) {
	cfg := testSessionConfig()
	cfg.MaxConcurrentSessions = 10
	manager, store := newTestManager(t, cfg)
	ctx := context.Background()
	userID := uuid.New()

	var expired, live []string
	for i := 0; i < 4; i++ {
		token, err := manager.CreateSession(ctx, createRequest(userID))
		require.NoError(t, err)
		if i%2 == 0 {
			session, err := store.Get(ctx, token.SessionID)
			require.NoError(t, err)
			session.ExpiresAt = time.Now().UTC().Add(-time.Minute)
			require.NoError(t, store.Save(ctx, session, nil))
			expired = append(expired, token.SessionID)
		} else {
			live = append(live, token.SessionID)
		}
	}

	cleaned, err := manager.CleanupExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(expired), cleaned)

	for _, id := range expired {
		_, err := store.Get(ctx, id)
		assert.ErrorIs(t, err, domainErrors.ErrSessionNotFound)
	}
	for _, id := range live {
		_, err := store.Get(ctx, id)
		assert.NoError(t, err)
	}
}

func TestSessionManager_ActivityBumpGoesThroughSink(t *testing.T) {
	cfg := testSessionConfig()
	cfg.ActivityExtensionThreshold = time.Minute
	manager, store := newTestManager(t, cfg)
	ctx := context.Background()

	token, err := manager.CreateSession(ctx, createRequest(uuid.New()))
	require.NoError(t, err)

	session, err := store.Get(ctx, token.SessionID)
	require.NoError(t, err)
	session.LastActivity = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.Save(ctx, session, nil))

	sink := &recordingSink{}
	manager.SetActivitySink(sink)

	result := manager.ValidateSessionByID(ctx, token.SessionID)
	require.True(t, result.IsValid())
	assert.Equal(t, []string{token.SessionID}, sink.enqueued)
}

type recordingSink struct {
	enqueued []string
}

func (s *recordingSink) Enqueue(sessionID string) bool {
	s.enqueued = append(s.enqueued, sessionID)
	return true
}

var errStorageDown = errors.New("redis down")

// failingStore errors on every operation, standing in for an unreachable
// Redis backend.
type failingStore struct{}

func (f *failingStore) Save(context.Context, *models.AuthSession, *models.SessionToken) error {
	return errStorageDown
}

func (f *failingStore) Get(context.Context, string) (*models.AuthSession, error) {
	return nil, errStorageDown
}

func (f *failingStore) Delete(context.Context, string) error {
	return errStorageDown
}

func (f *failingStore) ConsumeRefreshToken(context.Context, string) (string, error) {
	return "", errStorageDown
}

func (f *failingStore) ListByUser(context.Context, uuid.UUID) ([]*models.AuthSession, error) {
	return nil, errStorageDown
}

func (f *failingStore) ListAll(context.Context) ([]*models.AuthSession, error) {
	return nil, errStorageDown
}

func (f *failingStore) Revoke(context.Context, string, time.Time) error {
	return errStorageDown
}

func (f *failingStore) IsRevoked(context.Context, string) (bool, error) {
	return false, errStorageDown
}

func TestSessionManager_ValidationFailsClosedOnStorageError(t *testing.T) {
	store := &failingStore{}
	tokens, err := NewTokenService(testJWTConfig())
	require.NoError(t, err)
	manager := NewSessionManager(store, store, tokens, nil, testJWTConfig(), testSessionConfig(), zap.NewNop())

	// A storage failure on the session load is reported as an invalid
	// session, never as an error the caller could mistake for transient.
	result := manager.ValidateSessionByID(context.Background(), uuid.NewString())
	assert.Equal(t, models.StateInvalid, result.State)
	assert.Equal(t, "session validation error", result.ErrorMessage)
	assert.False(t, result.IsValid())

	// Same for a validly signed token when the revocation list cannot be
	// consulted: an unanswerable check fails closed.
	tokenString, _, _, err := tokens.Issue(testSession())
	require.NoError(t, err)

	result = manager.ValidateSession(context.Background(), tokenString)
	assert.Equal(t, models.StateInvalid, result.State)
	assert.Equal(t, "session validation error", result.ErrorMessage)
	assert.False(t, result.IsValid())
}

func TestSessionManager_WritePathPropagatesStorageError(t *testing.T) {
	store := &failingStore{}
	tokens, err := NewTokenService(testJWTConfig())
	require.NoError(t, err)
	manager := NewSessionManager(store, store, tokens, nil, testJWTConfig(), testSessionConfig(), zap.NewNop())

	_, err = manager.CreateSession(context.Background(), createRequest(uuid.New()))
	assert.ErrorIs(t, err, errStorageDown)

	_, err = manager.RefreshToken(context.Background(), "some-refresh-token")
	assert.ErrorIs(t, err, errStorageDown)
}
