package oidc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"

	apperrors "github.com/malyga99/job-flow-auth/pkg/errors"
)

// Rejection reasons carried by IDTokenInvalid errors.
const (
	ReasonMalformed = "malformed"
	ReasonIssuer    = "issuer"
	ReasonAudience  = "audience"
	ReasonExpiry    = "expiry"
	ReasonSignature = "signature"
)

// Verifier cryptographically verifies provider-issued ID tokens.
//
// Checks run in a fixed order and stop at the first failure: issuer,
// audience, expiry, then signature. A forged token learns nothing about
// which later checks it would have passed. Failures of the token itself
// surface as IDTokenInvalid with the failed check as reason; internal
// faults (key set unavailable, malformed key material) surface as
// VerifierFault instead of being blamed on the token.
type Verifier struct {
	keys     *KeySetCache
	issuers  []string
	audience string
}

// NewVerifier creates a verifier accepting tokens from any of the given
// issuers, addressed to the given audience.
func NewVerifier(keys *KeySetCache, issuers []string, audience string) *Verifier {
	return &Verifier{
		keys:     keys,
		issuers:  issuers,
		audience: audience,
	}
}

// Verify checks the raw ID token and returns its claims.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()

	unverified, _, err := parser.ParseUnverified(rawToken, claims)
	if err != nil {
		return nil, apperrors.IDTokenInvalid(ReasonMalformed)
	}

	if err := v.checkIssuer(claims); err != nil {
		return nil, err
	}
	if err := v.checkAudience(claims); err != nil {
		return nil, err
	}
	if err := v.checkExpiry(claims); err != nil {
		return nil, err
	}

	key, err := v.signingKey(ctx, unverified)
	if err != nil {
		return nil, err
	}

	verified, err := jwt.Parse(rawToken, func(*jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil || !verified.Valid {
		return nil, apperrors.IDTokenInvalid(ReasonSignature)
	}

	return claims, nil
}

func (v *Verifier) checkIssuer(claims jwt.MapClaims) error {
	issuer, err := claims.GetIssuer()
	if err != nil || issuer == "" {
		return apperrors.IDTokenInvalid(ReasonIssuer)
	}
	for _, allowed := range v.issuers {
		if issuer == allowed {
			return nil
		}
	}
	return apperrors.IDTokenInvalid(ReasonIssuer)
}

func (v *Verifier) checkAudience(claims jwt.MapClaims) error {
	audiences, err := claims.GetAudience()
	if err != nil || len(audiences) == 0 {
		return apperrors.IDTokenInvalid(ReasonAudience)
	}
	// Only the first audience entry is honored.
	if audiences[0] != v.audience {
		return apperrors.IDTokenInvalid(ReasonAudience)
	}
	return nil
}

func (v *Verifier) checkExpiry(claims jwt.MapClaims) error {
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil || exp.Before(time.Now()) {
		return apperrors.IDTokenInvalid(ReasonExpiry)
	}
	return nil
}

// signingKey resolves the token's kid against the cached key set and exports
// the raw public key.
func (v *Verifier) signingKey(ctx context.Context, token *jwt.Token) (any, error) {
	set, err := v.keys.Get(ctx)
	if err != nil {
		return nil, apperrors.VerifierFault(fmt.Errorf("key set unavailable: %w", err))
	}

	kid, ok := token.Header["kid"].(string)
	if !ok || kid == "" {
		return nil, apperrors.IDTokenInvalid(ReasonSignature)
	}

	key, found := set.LookupKeyID(kid)
	if !found {
		// The provider may have rotated keys since the last refresh.
		v.keys.Invalidate()
		set, err = v.keys.Get(ctx)
		if err != nil {
			return nil, apperrors.VerifierFault(fmt.Errorf("key set unavailable: %w", err))
		}
		key, found = set.LookupKeyID(kid)
		if !found {
			return nil, apperrors.IDTokenInvalid(ReasonSignature)
		}
	}

	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return nil, apperrors.VerifierFault(fmt.Errorf("export key %s: %w", kid, err))
	}

	return raw, nil
}

// IsFault reports whether the error is a verifier-internal failure rather
// than a rejection of the token.
func IsFault(err error) bool {
	return errors.Is(err, apperrors.ErrVerifierFault)
}
