package service

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/marketplace-platform/auth-service/internal/config"
	domainErrors "github.com/marketplace-platform/auth-service/internal/domain/errors"
	"github.com/marketplace-platform/auth-service/internal/domain/models"
)

// metaClaimPrefix marks session metadata entries carried into token claims.
const metaClaimPrefix = "meta_"

// AccessTokenClaims is the verified content of an access token.
type AccessTokenClaims struct {
	UserID    string
	Email     string
	Username  string
	SessionID string
	DeviceID  string
	JTI       string
	Roles     []string
	Metadata  map[string]string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenService issues and verifies HS256-signed access tokens and generates
// opaque refresh token values. It performs no storage I/O; a token asserts its
// claims without a round-trip.
type TokenService struct {
	cfg config.JWTConfig
	key []byte
}

// NewTokenService creates a token service from JWT configuration.
func NewTokenService(cfg config.JWTConfig) (*TokenService, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("jwt secret key is not configured")
	}
	return &TokenService{
		cfg: cfg,
		key: []byte(cfg.SecretKey),
	}, nil
}

// Issue signs an access token embedding the session's identity claims, a fresh
// jti, and every string metadata entry under a meta_ prefixed claim. The
// returned expiry is now + the configured access token lifetime.
func (s *TokenService) Issue(session *models.AuthSession) (tokenString string, jti string, expiry time.Time, err error) {
	now := time.Now().UTC()
	jti = uuid.NewString()
	expiry = now.Add(s.cfg.AccessTokenTTL)

	claims := jwt.MapClaims{
		"sub":        session.UserID.String(),
		"email":      session.UserEmail,
		"name":       session.UserName,
		"session_id": session.ID.String(),
		"device_id":  session.DeviceID,
		"roles":      session.Roles,
		"jti":        jti,
		"iat":        now.Unix(),
		"exp":        expiry.Unix(),
		"iss":        s.cfg.Issuer,
		"aud":        s.cfg.Audience,
	}
	for key, value := range session.Metadata {
		claims[metaClaimPrefix+key] = value
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err = token.SignedString(s.key)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return tokenString, jti, expiry, nil
}

// Verify checks the token signature and, per configuration, its lifetime,
// issuer, and audience. Claim checks honor the configured clock skew.
func (s *TokenService) Verify(tokenString string) (*AccessTokenClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		// Claim validation is done by hand below so each check can be
		// toggled independently.
		jwt.WithoutClaimsValidation(),
	)

	mapClaims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(tokenString, mapClaims, func(t *jwt.Token) (interface{}, error) {
		return s.key, nil
	})
	if err != nil || !token.Valid {
		if err == nil {
			err = domainErrors.ErrInvalidToken
		}
		return nil, fmt.Errorf("%w: %v", domainErrors.ErrInvalidToken, err)
	}

	claims := claimsFromMap(mapClaims)

	now := time.Now().UTC()
	if s.cfg.ValidateLifetime {
		if claims.ExpiresAt.IsZero() || !now.Before(claims.ExpiresAt.Add(s.cfg.ClockSkew)) {
			return nil, domainErrors.ErrExpiredToken
		}
	}
	if s.cfg.ValidateIssuer {
		if iss, _ := mapClaims["iss"].(string); iss != s.cfg.Issuer {
			return nil, domainErrors.ErrInvalidIssuer
		}
	}
	if s.cfg.ValidateAudience {
		if aud, _ := mapClaims["aud"].(string); aud != s.cfg.Audience {
			return nil, domainErrors.ErrInvalidAudience
		}
	}

	return claims, nil
}

// ExtractSessionID parses the session_id claim without verifying the
// signature. Callers must not trust the result until Verify has succeeded;
// the session manager only uses it after full verification.
func (s *TokenService) ExtractSessionID(tokenString string) string {
	claims := s.parseUnverified(tokenString)
	if claims == nil {
		return ""
	}
	sessionID, _ := claims["session_id"].(string)
	return sessionID
}

// ExtractJTI parses the jti claim without verifying the signature.
func (s *TokenService) ExtractJTI(tokenString string) string {
	claims := s.parseUnverified(tokenString)
	if claims == nil {
		return ""
	}
	jti, _ := claims["jti"].(string)
	return jti
}

// ExtractExpiry parses the exp claim without verifying the signature.
// Returns the zero time when absent or unparsable.
func (s *TokenService) ExtractExpiry(tokenString string) time.Time {
	claims := s.parseUnverified(tokenString)
	if claims == nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// NewRefreshToken returns a 512-bit cryptographically random opaque value.
// It carries no claims; the store is the only authority on its validity.
func (s *TokenService) NewRefreshToken() (string, error) {
	b := make([]byte, 64)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate refresh token entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (s *TokenService) parseUnverified(tokenString string) jwt.MapClaims {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil
	}
	return claims
}

func claimsFromMap(mc jwt.MapClaims) *AccessTokenClaims {
	claims := &AccessTokenClaims{
		Metadata: make(map[string]string),
	}

	claims.UserID, _ = mc["sub"].(string)
	claims.Email, _ = mc["email"].(string)
	claims.Username, _ = mc["name"].(string)
	claims.SessionID, _ = mc["session_id"].(string)
	claims.DeviceID, _ = mc["device_id"].(string)
	claims.JTI, _ = mc["jti"].(string)

	if raw, ok := mc["roles"].([]interface{}); ok {
		for _, r := range raw {
			if role, ok := r.(string); ok {
				claims.Roles = append(claims.Roles, role)
			}
		}
	}

	for key, value := range mc {
		if strings.HasPrefix(key, metaClaimPrefix) {
			if str, ok := value.(string); ok {
				claims.Metadata[strings.TrimPrefix(key, metaClaimPrefix)] = str
			}
		}
	}

	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}

	return claims
}
