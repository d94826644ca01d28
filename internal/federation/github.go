package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"

	"github.com/malyga99/job-flow-auth/internal/domain"
	apperrors "github.com/malyga99/job-flow-auth/pkg/errors"
)

// GitHub endpoint defaults, overridable in configuration.
const (
	GithubTokenURL   = "https://github.com/login/oauth/access_token"
	GithubProfileURL = "https://api.github.com/user"
)

// maxProfileBody bounds the size of a fetched profile document.
const maxProfileBody = 1 << 20

// GithubExchanger trades an authorization code for raw profile JSON.
// GitHub's code exchange yields an opaque access token with no identity
// claims, so a second bearer-authenticated profile fetch is required before
// a profile can be extracted.
type GithubExchanger struct {
	cfg        *oauth2.Config
	profileURL string
	httpClient *http.Client
}

// NewGithubExchanger creates the GitHub code exchanger.
func NewGithubExchanger(clientID, clientSecret, redirectURL, tokenURL, profileURL string, httpClient *http.Client) *GithubExchanger {
	if tokenURL == "" {
		tokenURL = GithubTokenURL
	}
	if profileURL == "" {
		profileURL = GithubProfileURL
	}
	return &GithubExchanger{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		profileURL: profileURL,
		httpClient: httpClient,
	}
}

// Exchange POSTs the code to the token endpoint, then fetches the profile
// with the resulting access token.
func (e *GithubExchanger) Exchange(ctx context.Context, code string) (*Payload, error) {
	if e.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
	}

	tok, err := e.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, apperrors.ExchangeFailed(domain.ProviderGithub.String(), "authorization code rejected")
	}
	if tok.AccessToken == "" {
		return nil, apperrors.ExchangeFailed(domain.ProviderGithub.String(), "access_token field missing")
	}

	profile, err := e.fetchProfile(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}

	return &Payload{ProfileJSON: profile}, nil
}

// fetchProfile performs the bearer-authenticated GET against the profile
// endpoint. An exchange that succeeded but cannot resolve a profile is a
// provider-integration fault, not a rejected code.
func (e *GithubExchanger) fetchProfile(ctx context.Context, accessToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.profileURL, http.NoBody)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("create profile request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	client := e.httpClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("fetch github profile: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Internal(fmt.Errorf("fetch github profile: unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBody))
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("read github profile body: %w", err))
	}

	return body, nil
}

// githubProfile mirrors the profile fields this pipeline reads. Fields GitHub
// omits simply stay zero; a sparse profile is normal, not an error.
type githubProfile struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Login     string `json:"login"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// GithubExtractor reads the normalized profile from raw profile JSON.
type GithubExtractor struct{}

// Extract maps name, id, login, email, and avatar_url. The name field is
// split on the first space into first and last name; a single-word name
// becomes the first name with an empty last name.
func (GithubExtractor) Extract(payload *Payload) (*domain.NormalizedProfile, error) {
	if payload == nil || len(payload.ProfileJSON) == 0 {
		return nil, apperrors.Internal(errors.New("github payload carries no profile document"))
	}

	var p githubProfile
	if err := json.Unmarshal(payload.ProfileJSON, &p); err != nil {
		return nil, apperrors.Internal(fmt.Errorf("parse github profile: %w", err))
	}
	if p.ID == 0 {
		return nil, apperrors.Internal(errors.New("github profile missing id"))
	}

	first, last := splitName(p.Name)

	loginOrEmail := p.Email
	if loginOrEmail == "" {
		loginOrEmail = p.Login
	}

	return &domain.NormalizedProfile{
		FirstName:    first,
		LastName:     last,
		LoginOrEmail: loginOrEmail,
		AvatarURL:    p.AvatarURL,
		Provider:     domain.ProviderGithub,
		SubjectID:    strconv.FormatInt(p.ID, 10),
	}, nil
}

func splitName(name string) (first, last string) {
	for i, r := range name {
		if r == ' ' {
			return name[:i], name[i+1:]
		}
	}
	return name, ""
}
