package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketplace-platform/auth-service/internal/config"
	domainErrors "github.com/marketplace-platform/auth-service/internal/domain/errors"
	"github.com/marketplace-platform/auth-service/internal/domain/models"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		SecretKey:        "test-secret-key-that-is-long-enough",
		Issuer:           "marketplace-test",
		Audience:         "marketplace-services",
		AccessTokenTTL:   15 * time.Minute,
		RefreshTokenTTL:  7 * 24 * time.Hour,
		ValidateIssuer:   true,
		ValidateAudience: true,
		ValidateLifetime: true,
	}
}

func testSession() *models.AuthSession {
	now := time.Now().UTC()
	return &models.AuthSession{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		UserEmail:    "buyer@example.com",
		UserName:     "buyer",
		Roles:        []string{"user", "seller"},
		DeviceID:     "device-42",
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(24 * time.Hour),
		IsActive:     true,
		Metadata:     map[string]string{"locale": "uk-UA"},
	}
}

func TestTokenService_IssueVerifyRoundTrip(t *testing.T) {
	svc, err := NewTokenService(testJWTConfig())
	require.NoError(t, err)

	session := testSession()
	tokenString, jti, expiry, err := svc.Issue(session)
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)
	require.NotEmpty(t, jti)
	assert.WithinDuration(t, time.Now().UTC().Add(15*time.Minute), expiry, 5*time.Second)

	claims, err := svc.Verify(tokenString)
	require.NoError(t, err)
	assert.Equal(t, session.UserID.String(), claims.UserID)
	assert.Equal(t, session.UserEmail, claims.Email)
	assert.Equal(t, session.UserName, claims.Username)
	assert.Equal(t, session.ID.String(), claims.SessionID)
	assert.Equal(t, session.DeviceID, claims.DeviceID)
	assert.Equal(t, jti, claims.JTI)
	assert.Equal(t, []string{"user", "seller"}, claims.Roles)
	assert.Equal(t, map[string]string{"locale": "uk-UA"}, claims.Metadata)
}

func TestTokenService_VerifyRejectsTamperedSignature(t *testing.T) {
	svc, err := NewTokenService(testJWTConfig())
	require.NoError(t, err)

	other, err := NewTokenService(config.JWTConfig{
		SecretKey:      "a-completely-different-secret-key",
		Issuer:         "marketplace-test",
		Audience:       "marketplace-services",
		AccessTokenTTL: 15 * time.Minute,
	})
	require.NoError(t, err)

	tokenString, _, _, err := other.Issue(testSession())
	require.NoError(t, err)

	_, err = svc.Verify(tokenString)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidToken)
}

func TestTokenService_VerifyRejectsExpired(t *testing.T) {
	cfg := testJWTConfig()
	cfg.AccessTokenTTL = -time.Minute
	svc, err := NewTokenService(cfg)
	require.NoError(t, err)

	tokenString, _, _, err := svc.Issue(testSession())
	require.NoError(t, err)

	_, err = svc.Verify(tokenString)
	assert.ErrorIs(t, err, domainErrors.ErrExpiredToken)
}

func TestTokenService_ClockSkewAllowsRecentlyExpired(t *testing.T) {
	cfg := testJWTConfig()
	cfg.AccessTokenTTL = -time.Minute
	cfg.ClockSkew = 5 * time.Minute
	svc, err := NewTokenService(cfg)
	require.NoError(t, err)

	tokenString, _, _, err := svc.Issue(testSession())
	require.NoError(t, err)

	_, err = svc.Verify(tokenString)
	assert.NoError(t, err)
}

func TestTokenService_VerifyRejectsWrongIssuerAndAudience(t *testing.T) {
	issuerCfg := testJWTConfig()
	issuerCfg.Issuer = "someone-else"
	wrongIssuer, err := NewTokenService(issuerCfg)
	require.NoError(t, err)

	tokenString, _, _, err := wrongIssuer.Issue(testSession())
	require.NoError(t, err)

	svc, err := NewTokenService(testJWTConfig())
	require.NoError(t, err)
	_, err = svc.Verify(tokenString)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidIssuer)

	audCfg := testJWTConfig()
	audCfg.Audience = "somewhere-else"
	wrongAudience, err := NewTokenService(audCfg)
	require.NoError(t, err)

	tokenString, _, _, err = wrongAudience.Issue(testSession())
	require.NoError(t, err)
	_, err = svc.Verify(tokenString)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidAudience)
}

func TestTokenService_ValidationTogglesDisableChecks(t *testing.T) {
	issueCfg := testJWTConfig()
	issueCfg.Issuer = "someone-else"
	issueCfg.Audience = "somewhere-else"
	issueCfg.AccessTokenTTL = -time.Minute
	issuer, err := NewTokenService(issueCfg)
	require.NoError(t, err)

	tokenString, _, _, err := issuer.Issue(testSession())
	require.NoError(t, err)

	verifyCfg := issueCfg
	verifyCfg.Issuer = "marketplace-test"
	verifyCfg.Audience = "marketplace-services"
	verifyCfg.ValidateIssuer = false
	verifyCfg.ValidateAudience = false
	verifyCfg.ValidateLifetime = false
	verifier, err := NewTokenService(verifyCfg)
	require.NoError(t, err)

	// Signature still matches (same key); all other checks are off.
	_, err = verifier.Verify(tokenString)
	assert.NoError(t, err)
}

func TestTokenService_ExtractWithoutVerification(t *testing.T) {
	svc, err := NewTokenService(testJWTConfig())
	require.NoError(t, err)

	session := testSession()
	tokenString, jti, expiry, err := svc.Issue(session)
	require.NoError(t, err)

	assert.Equal(t, session.ID.String(), svc.ExtractSessionID(tokenString))
	assert.Equal(t, jti, svc.ExtractJTI(tokenString))
	assert.WithinDuration(t, expiry, svc.ExtractExpiry(tokenString), time.Second)

	assert.Empty(t, svc.ExtractSessionID("not-a-token"))
	assert.Empty(t, svc.ExtractJTI("not-a-token"))
	assert.True(t, svc.ExtractExpiry("not-a-token").IsZero())
}

func TestTokenService_NewRefreshTokenIsOpaqueAndUnique(t *testing.T) {
	svc, err := NewTokenService(testJWTConfig())
	require.NoError(t, err)

	first, err := svc.NewRefreshToken()
	require.NoError(t, err)
	second, err := svc.NewRefreshToken()
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	// 64 random bytes, base64url without padding.
	assert.GreaterOrEqual(t, len(first), 86)
	_, err = svc.Verify(first)
	assert.Error(t, err, "refresh tokens carry no claims and must not verify as access tokens")
}
