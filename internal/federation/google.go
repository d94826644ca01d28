package federation

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/malyga99/job-flow-auth/internal/domain"
	apperrors "github.com/malyga99/job-flow-auth/pkg/errors"
)

// Google endpoint defaults. TokenURL and JWKSURL are overridable in
// configuration so tests and sandboxes can point at a local provider.
const (
	GoogleTokenURL = "https://oauth2.googleapis.com/token"
	GoogleJWKSURL  = "https://www.googleapis.com/oauth2/v3/certs"
)

// GoogleIssuers are the issuer values Google is known to emit.
var GoogleIssuers = []string{"https://accounts.google.com", "accounts.google.com"}

// GoogleExchanger trades an authorization code for a Google ID token.
type GoogleExchanger struct {
	cfg        *oauth2.Config
	httpClient *http.Client
}

// NewGoogleExchanger creates the Google code exchanger.
func NewGoogleExchanger(clientID, clientSecret, redirectURL, tokenURL string, httpClient *http.Client) *GoogleExchanger {
	if tokenURL == "" {
		tokenURL = GoogleTokenURL
	}
	return &GoogleExchanger{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
	}
}

// Exchange POSTs the code to the token endpoint and extracts the id_token
// field. A response without one is a hard failure, not a nil payload.
func (e *GoogleExchanger) Exchange(ctx context.Context, code string) (*Payload, error) {
	if e.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
	}

	tok, err := e.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, apperrors.ExchangeFailed(domain.ProviderGoogle.String(), "authorization code rejected")
	}

	idToken, ok := tok.Extra("id_token").(string)
	if !ok || idToken == "" {
		return nil, apperrors.ExchangeFailed(domain.ProviderGoogle.String(), "id_token field missing")
	}

	return &Payload{IDToken: idToken}, nil
}

// GoogleExtractor reads the normalized profile from verified ID token claims.
// Claims are already typed, so no JSON tree walk is needed.
type GoogleExtractor struct{}

// Extract maps the given_name, family_name, sub, picture, and email claims.
func (GoogleExtractor) Extract(payload *Payload) (*domain.NormalizedProfile, error) {
	if payload == nil || payload.Claims == nil {
		return nil, apperrors.Internal(errors.New("google payload carries no verified claims"))
	}

	sub, err := payload.Claims.GetSubject()
	if err != nil || sub == "" {
		return nil, apperrors.IDTokenInvalid("missing subject claim")
	}

	str := func(key string) string {
		v, _ := payload.Claims[key].(string)
		return v
	}

	return &domain.NormalizedProfile{
		FirstName:    str("given_name"),
		LastName:     str("family_name"),
		LoginOrEmail: str("email"),
		AvatarURL:    str("picture"),
		Provider:     domain.ProviderGoogle,
		SubjectID:    sub,
	}, nil
}
