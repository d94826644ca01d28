package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/malyga99/job-flow-auth/internal/domain"
)

// Token type claim values.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims holds the validated claims of a session token. AccountID mirrors the
// subject claim; Extra carries any non-registered claims the token was issued
// with.
type Claims struct {
	AccountID string
	TokenType string
	TokenID   string
	ExpiresAt time.Time
	Extra     map[string]any
}

// TokenManager issues and validates HS256-signed session tokens. Tokens are
// self-contained: signature and expiry are the only validity proof, nothing
// is persisted.
type TokenManager struct {
	secret        []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

// NewTokenManager creates a token manager with the given symmetric secret and
// expiry durations.
func NewTokenManager(secret string, accessExpiry, refreshExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:        []byte(secret),
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
	}
}

// registered claims that extra claims must not override.
var reservedClaims = map[string]struct{}{
	"sub": {}, "iat": {}, "exp": {}, "jti": {}, "token_type": {},
}

// IssuePair generates an access and refresh token pair for the account.
// Both tokens carry the account id as subject, a unique token id, and the
// extra claims; they differ only in expiry and the token_type claim.
func (m *TokenManager) IssuePair(accountID string, extra map[string]any) (*domain.TokenPair, error) {
	access, err := m.generate(accountID, TokenTypeAccess, m.accessExpiry, extra)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}

	refresh, err := m.generate(accountID, TokenTypeRefresh, m.refreshExpiry, extra)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	return &domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (m *TokenManager) generate(accountID, tokenType string, expiry time.Duration, extra map[string]any) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":        accountID,
		"iat":        jwt.NewNumericDate(now),
		"exp":        jwt.NewNumericDate(now.Add(expiry)),
		"jti":        uuid.NewString(),
		"token_type": tokenType,
	}
	for k, v := range extra {
		if _, reserved := reservedClaims[k]; reserved {
			continue
		}
		claims[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// Validate parses a session token and returns its claims. Any signature,
// expiry, or parse failure is a hard rejection.
func (m *TokenManager) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	sub, err := mapClaims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("token missing subject")
	}

	exp, err := mapClaims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("token missing expiry")
	}

	tokenType, _ := mapClaims["token_type"].(string)
	tokenID, _ := mapClaims["jti"].(string)

	extra := make(map[string]any)
	for k, v := range mapClaims {
		if _, reserved := reservedClaims[k]; reserved {
			continue
		}
		extra[k] = v
	}

	return &Claims{
		AccountID: sub,
		TokenType: tokenType,
		TokenID:   tokenID,
		ExpiresAt: exp.Time,
		Extra:     extra,
	}, nil
}

// IsValid reports whether the token is well formed, unexpired, and bound to
// the given account id.
func (m *TokenManager) IsValid(tokenString, accountID string) bool {
	claims, err := m.Validate(tokenString)
	if err != nil {
		return false
	}
	return claims.AccountID == accountID
}

// ValidateRefresh parses a session token and additionally requires the
// refresh token_type claim. Access tokens presented to the refresh endpoint
// are rejected.
func (m *TokenManager) ValidateRefresh(tokenString string) (*Claims, error) {
	claims, err := m.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeRefresh {
		return nil, fmt.Errorf("token is not a refresh token")
	}
	return claims, nil
}
