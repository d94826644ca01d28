package federation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malyga99/job-flow-auth/internal/domain"
	apperrors "github.com/malyga99/job-flow-auth/pkg/errors"
)

// githubServers spins up token and profile endpoints. The profile endpoint
// requires the bearer token issued by the token endpoint.
func githubServers(t *testing.T, profileJSON string) (token, profile *httptest.Server) {
	t.Helper()

	token = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.NotEmpty(t, r.Form.Get("code"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"gho_token","token_type":"bearer"}`))
	}))
	t.Cleanup(token.Close)

	profile = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gho_token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(profileJSON))
	}))
	t.Cleanup(profile.Close)

	return token, profile
}

// ---------------------------------------------------------------------------
// GithubExchanger
// ---------------------------------------------------------------------------

func TestGithubExchanger_Exchange_Success(t *testing.T) {
	token, profile := githubServers(t, `{"id":123,"name":"Ivan","avatar_url":"some_url"}`)

	e := NewGithubExchanger("client-id", "client-secret", "", token.URL, profile.URL, http.DefaultClient)

	payload, err := e.Exchange(context.Background(), "code-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":123,"name":"Ivan","avatar_url":"some_url"}`, string(payload.ProfileJSON))
	assert.Empty(t, payload.IDToken)
}

func TestGithubExchanger_Exchange_MissingAccessToken(t *testing.T) {
	token := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token_type":"bearer"}`))
	}))
	defer token.Close()

	e := NewGithubExchanger("client-id", "client-secret", "", token.URL, "http://unused.invalid", http.DefaultClient)

	payload, err := e.Exchange(context.Background(), "code-1")
	assert.Nil(t, payload)
	assert.ErrorIs(t, err, apperrors.ErrExchangeFailed)
}

func TestGithubExchanger_Exchange_CodeRejected(t *testing.T) {
	token := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer token.Close()

	e := NewGithubExchanger("client-id", "client-secret", "", token.URL, "http://unused.invalid", http.DefaultClient)

	payload, err := e.Exchange(context.Background(), "forged-code")
	assert.Nil(t, payload)
	assert.ErrorIs(t, err, apperrors.ErrExchangeFailed)
}

func TestGithubExchanger_Exchange_ProfileFetchFault(t *testing.T) {
	token := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"gho_token","token_type":"bearer"}`))
	}))
	defer token.Close()

	profile := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer profile.Close()

	e := NewGithubExchanger("client-id", "client-secret", "", token.URL, profile.URL, http.DefaultClient)

	payload, err := e.Exchange(context.Background(), "code-1")
	assert.Nil(t, payload)
	require.Error(t, err)

	// A successful exchange with a failing profile fetch is a provider
	// integration fault, not a rejected code.
	assert.NotErrorIs(t, err, apperrors.ErrExchangeFailed)
	assert.Equal(t, 500, apperrors.HTTPStatus(err))
}

// ---------------------------------------------------------------------------
// GithubExtractor
// ---------------------------------------------------------------------------

func TestGithubExtractor_Extract(t *testing.T) {
	payload := &Payload{ProfileJSON: []byte(`{"id":123,"name":"Ivan Ivanov","login":"ivan","email":"ivan@example.com","avatar_url":"some_url"}`)}

	profile, err := GithubExtractor{}.Extract(payload)
	require.NoError(t, err)

	assert.Equal(t, "Ivan", profile.FirstName)
	assert.Equal(t, "Ivanov", profile.LastName)
	assert.Equal(t, "ivan@example.com", profile.LoginOrEmail)
	assert.Equal(t, "some_url", profile.AvatarURL)
	assert.Equal(t, domain.ProviderGithub, profile.Provider)
	assert.Equal(t, "123", profile.SubjectID)
}

func TestGithubExtractor_Extract_SparseProfile(t *testing.T) {
	// GitHub commonly omits optional fields; missing fields stay empty
	// rather than failing extraction.
	payload := &Payload{ProfileJSON: []byte(`{"id":123,"login":"ivan"}`)}

	profile, err := GithubExtractor{}.Extract(payload)
	require.NoError(t, err)

	assert.Empty(t, profile.FirstName)
	assert.Empty(t, profile.LastName)
	assert.Empty(t, profile.AvatarURL)
	assert.Equal(t, "ivan", profile.LoginOrEmail)
	assert.Equal(t, "123", profile.SubjectID)
}

func TestGithubExtractor_Extract_SingleWordName(t *testing.T) {
	payload := &Payload{ProfileJSON: []byte(`{"id":123,"name":"Ivan"}`)}

	profile, err := GithubExtractor{}.Extract(payload)
	require.NoError(t, err)
	assert.Equal(t, "Ivan", profile.FirstName)
	assert.Empty(t, profile.LastName)
}

func TestGithubExtractor_Extract_MissingID(t *testing.T) {
	payload := &Payload{ProfileJSON: []byte(`{"name":"Ivan"}`)}

	profile, err := GithubExtractor{}.Extract(payload)
	assert.Nil(t, profile)
	assert.Error(t, err)
}

func TestGithubExtractor_Extract_MalformedJSON(t *testing.T) {
	payload := &Payload{ProfileJSON: []byte(`{not json`)}

	profile, err := GithubExtractor{}.Extract(payload)
	assert.Nil(t, profile)
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// StaticStateValidator
// ---------------------------------------------------------------------------

func TestStaticStateValidator(t *testing.T) {
	v := NewStaticStateValidator(domain.ProviderGoogle, "expected")

	assert.NoError(t, v.ValidateState("expected"))

	err := v.ValidateState("other")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrStateMismatch)

	// Empty state is just another mismatch.
	assert.ErrorIs(t, v.ValidateState(""), apperrors.ErrStateMismatch)
}
