// Package federation implements the provider-polymorphic OAuth2/OIDC login
// pipeline: state validation, authorization code exchange, ID token
// verification, and profile extraction, composed per provider.
package federation

import (
	"context"

	"github.com/golang-jwt/jwt/v5"

	"github.com/malyga99/job-flow-auth/internal/domain"
	apperrors "github.com/malyga99/job-flow-auth/pkg/errors"
)

// Payload is what a token exchange yields. Google fills IDToken (claims are
// attached after verification); GitHub fills ProfileJSON from the follow-up
// profile fetch.
type Payload struct {
	IDToken     string
	Claims      jwt.MapClaims
	ProfileJSON []byte
}

// StateValidator checks the CSRF state parameter presented by the client.
type StateValidator interface {
	ValidateState(presented string) error
}

// TokenExchanger trades an authorization code for a provider payload.
type TokenExchanger interface {
	Exchange(ctx context.Context, code string) (*Payload, error)
}

// IDTokenVerifier cryptographically verifies a provider-signed ID token and
// returns its claims. Only providers that issue ID tokens carry one.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (jwt.MapClaims, error)
}

// ProfileExtractor maps a provider payload into the normalized profile.
type ProfileExtractor interface {
	Extract(payload *Payload) (*domain.NormalizedProfile, error)
}

// Strategy bundles the per-provider stage implementations. Verifier is nil
// for providers whose exchange yields a profile directly.
type Strategy struct {
	State     StateValidator
	Exchanger TokenExchanger
	Verifier  IDTokenVerifier
	Extractor ProfileExtractor
}

// Registry maps providers to their strategies.
type Registry struct {
	strategies map[domain.Provider]*Strategy
}

// NewRegistry creates an empty strategy registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[domain.Provider]*Strategy)}
}

// Register installs the strategy for a provider, replacing any previous one.
func (r *Registry) Register(provider domain.Provider, s *Strategy) {
	r.strategies[provider] = s
}

// Lookup returns the strategy for a provider. An unregistered provider is a
// client error, not a server fault.
func (r *Registry) Lookup(provider domain.Provider) (*Strategy, error) {
	s, ok := r.strategies[provider]
	if !ok {
		return nil, apperrors.UnsupportedProvider(provider.String())
	}
	return s, nil
}

// Providers returns the registered provider names.
func (r *Registry) Providers() []domain.Provider {
	out := make([]domain.Provider, 0, len(r.strategies))
	for p := range r.strategies {
		out = append(out, p)
	}
	return out
}
