package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/malyga99/job-flow-auth/pkg/errors"
	"github.com/malyga99/job-flow-auth/pkg/httpclient"
)

const (
	testIssuer   = "https://accounts.google.com"
	testAudience = "client-id-123.apps.googleusercontent.com"
	testKeyID    = "key-1"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func genKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

// jwksJSON builds a JWKS document exposing the public halves of the given keys.
func jwksJSON(t *testing.T, keys map[string]*rsa.PrivateKey) []byte {
	t.Helper()
	set := jwk.NewSet()
	for kid, key := range keys {
		pub, err := jwk.Import(key.Public())
		require.NoError(t, err)
		require.NoError(t, pub.Set(jwk.KeyIDKey, kid))
		require.NoError(t, pub.Set(jwk.AlgorithmKey, "RS256"))
		require.NoError(t, set.AddKey(pub))
	}
	doc, err := json.Marshal(set)
	require.NoError(t, err)
	return doc
}

// jwksServer serves the document and counts fetches.
func jwksServer(t *testing.T, doc []byte) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":         testIssuer,
		"aud":         testAudience,
		"sub":         "108476516789",
		"exp":         time.Now().Add(time.Hour).Unix(),
		"iat":         time.Now().Unix(),
		"given_name":  "Ivan",
		"family_name": "Ivanov",
	}
}

func newVerifier(jwksURL string) (*Verifier, *KeySetCache) {
	client := httpclient.New(httpclient.DefaultConfig())
	cache := NewKeySetCache(client, jwksURL, time.Hour, testLogger())
	return NewVerifier(cache, []string{testIssuer}, testAudience), cache
}

// ---------------------------------------------------------------------------
// Verify
// ---------------------------------------------------------------------------

func TestVerifier_Verify_Success(t *testing.T) {
	key := genKey(t)
	srv, _ := jwksServer(t, jwksJSON(t, map[string]*rsa.PrivateKey{testKeyID: key}))
	v, _ := newVerifier(srv.URL)

	claims, err := v.Verify(context.Background(), signToken(t, key, testKeyID, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "108476516789", claims["sub"])
	assert.Equal(t, "Ivan", claims["given_name"])
}

func TestVerifier_Verify_WrongIssuer(t *testing.T) {
	key := genKey(t)
	srv, hits := jwksServer(t, jwksJSON(t, map[string]*rsa.PrivateKey{testKeyID: key}))
	v, _ := newVerifier(srv.URL)

	c := validClaims()
	c["iss"] = "https://evil.example.com"

	claims, err := v.Verify(context.Background(), signToken(t, key, testKeyID, c))
	assert.Nil(t, claims)
	require.ErrorIs(t, err, apperrors.ErrIDTokenInvalid)
	assert.Contains(t, err.Error(), ReasonIssuer)

	// Issuer check fails before any key material is needed.
	assert.Equal(t, int64(0), hits.Load())
}

func TestVerifier_Verify_WrongAudience(t *testing.T) {
	key := genKey(t)
	srv, hits := jwksServer(t, jwksJSON(t, map[string]*rsa.PrivateKey{testKeyID: key}))
	v, _ := newVerifier(srv.URL)

	c := validClaims()
	c["aud"] = "some-other-client"

	claims, err := v.Verify(context.Background(), signToken(t, key, testKeyID, c))
	assert.Nil(t, claims)
	require.ErrorIs(t, err, apperrors.ErrIDTokenInvalid)
	assert.Contains(t, err.Error(), ReasonAudience)
	assert.Equal(t, int64(0), hits.Load())
}

func TestVerifier_Verify_Expired(t *testing.T) {
	key := genKey(t)
	srv, hits := jwksServer(t, jwksJSON(t, map[string]*rsa.PrivateKey{testKeyID: key}))
	v, _ := newVerifier(srv.URL)

	c := validClaims()
	c["exp"] = time.Now().Add(-time.Hour).Unix()

	claims, err := v.Verify(context.Background(), signToken(t, key, testKeyID, c))
	assert.Nil(t, claims)
	require.ErrorIs(t, err, apperrors.ErrIDTokenInvalid)
	assert.Contains(t, err.Error(), ReasonExpiry)
	assert.Equal(t, int64(0), hits.Load())
}

func TestVerifier_Verify_BadSignature(t *testing.T) {
	key := genKey(t)
	imposter := genKey(t)
	srv, _ := jwksServer(t, jwksJSON(t, map[string]*rsa.PrivateKey{testKeyID: key}))
	v, _ := newVerifier(srv.URL)

	// Token carries a known kid but is signed with a different key.
	claims, err := v.Verify(context.Background(), signToken(t, imposter, testKeyID, validClaims()))
	assert.Nil(t, claims)
	require.ErrorIs(t, err, apperrors.ErrIDTokenInvalid)
	assert.Contains(t, err.Error(), ReasonSignature)
}

func TestVerifier_Verify_UnknownKeyID(t *testing.T) {
	key := genKey(t)
	srv, hits := jwksServer(t, jwksJSON(t, map[string]*rsa.PrivateKey{testKeyID: key}))
	v, _ := newVerifier(srv.URL)

	claims, err := v.Verify(context.Background(), signToken(t, key, "rotated-away", validClaims()))
	assert.Nil(t, claims)
	require.ErrorIs(t, err, apperrors.ErrIDTokenInvalid)
	assert.Contains(t, err.Error(), ReasonSignature)

	// Unknown kid forces one invalidate-and-refetch before giving up.
	assert.Equal(t, int64(2), hits.Load())
}

func TestVerifier_Verify_Malformed(t *testing.T) {
	key := genKey(t)
	srv, _ := jwksServer(t, jwksJSON(t, map[string]*rsa.PrivateKey{testKeyID: key}))
	v, _ := newVerifier(srv.URL)

	claims, err := v.Verify(context.Background(), "not.a.jwt")
	assert.Nil(t, claims)
	require.ErrorIs(t, err, apperrors.ErrIDTokenInvalid)
	assert.Contains(t, err.Error(), ReasonMalformed)
}

func TestVerifier_Verify_KeySetUnavailable(t *testing.T) {
	key := genKey(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	v, _ := newVerifier(srv.URL)

	claims, err := v.Verify(context.Background(), signToken(t, key, testKeyID, validClaims()))
	assert.Nil(t, claims)
	assert.True(t, IsFault(err))
	assert.NotErrorIs(t, err, apperrors.ErrIDTokenInvalid)
}

// ---------------------------------------------------------------------------
// KeySetCache
// ---------------------------------------------------------------------------

func TestKeySetCache_CachesWithinTTL(t *testing.T) {
	key := genKey(t)
	srv, hits := jwksServer(t, jwksJSON(t, map[string]*rsa.PrivateKey{testKeyID: key}))

	client := httpclient.New(httpclient.DefaultConfig())
	cache := NewKeySetCache(client, srv.URL, time.Hour, testLogger())

	for i := 0; i < 3; i++ {
		set, err := cache.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, set.Len())
	}
	assert.Equal(t, int64(1), hits.Load())
}

func TestKeySetCache_ServesStaleOnRefreshError(t *testing.T) {
	key := genKey(t)
	doc := jwksJSON(t, map[string]*rsa.PrivateKey{testKeyID: key})

	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(doc)
	}))
	defer srv.Close()

	client := httpclient.New(httpclient.DefaultConfig())
	cache := NewKeySetCache(client, srv.URL, time.Nanosecond, testLogger())

	set, err := cache.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())

	// TTL of a nanosecond forces a refresh; the refresh now fails.
	fail.Store(true)
	time.Sleep(time.Millisecond)

	set, err = cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())
}

func TestKeySetCache_ErrorWithNoSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := httpclient.New(httpclient.DefaultConfig())
	cache := NewKeySetCache(client, srv.URL, time.Hour, testLogger())

	set, err := cache.Get(context.Background())
	assert.Nil(t, set)
	assert.Error(t, err)
}
