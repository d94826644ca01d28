package oidc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

// maxJWKSBody bounds the size of a fetched JWKS document.
const maxJWKSBody = 1 << 20

// HTTPGetter is the outbound client used to fetch the JWKS document. It is
// satisfied by httpclient.Client and httpclient.CircuitBreakerClient.
type HTTPGetter interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

// KeySetCache caches the provider's JWKS document with a TTL. Refreshes
// replace the whole snapshot; a failed refresh falls back to the previous
// snapshot so transient provider outages do not take down token verification
// while keys are still plausibly valid.
type KeySetCache struct {
	client  HTTPGetter
	jwksURL string
	ttl     time.Duration
	logger  *slog.Logger

	mu        sync.RWMutex
	set       jwk.Set
	fetchedAt time.Time
}

// NewKeySetCache creates a key set cache for the given JWKS endpoint.
func NewKeySetCache(client HTTPGetter, jwksURL string, ttl time.Duration, logger *slog.Logger) *KeySetCache {
	return &KeySetCache{
		client:  client,
		jwksURL: jwksURL,
		ttl:     ttl,
		logger:  logger,
	}
}

// Get returns the current key set, refreshing it when the TTL has elapsed.
// When a refresh fails and a previous snapshot exists, the stale snapshot is
// returned; the error is only surfaced when no keys are available at all.
func (c *KeySetCache) Get(ctx context.Context) (jwk.Set, error) {
	c.mu.RLock()
	set, fetchedAt := c.set, c.fetchedAt
	c.mu.RUnlock()

	if set != nil && time.Since(fetchedAt) < c.ttl {
		return set, nil
	}

	fresh, err := c.fetch(ctx)
	if err != nil {
		if set != nil {
			c.logger.WarnContext(ctx, "JWKS refresh failed, serving stale key set",
				slog.String("jwks_url", c.jwksURL),
				slog.String("error", err.Error()),
			)
			return set, nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.set = fresh
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	return fresh, nil
}

// fetch downloads and parses the JWKS document.
func (c *KeySetCache) fetch(ctx context.Context) (jwk.Set, error) {
	resp, err := c.client.Get(ctx, c.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("fetch JWKS: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch JWKS: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBody))
	if err != nil {
		return nil, fmt.Errorf("read JWKS body: %w", err)
	}

	set, err := jwk.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse JWKS: %w", err)
	}
	if set.Len() == 0 {
		return nil, fmt.Errorf("parse JWKS: empty key set")
	}

	return set, nil
}

// Invalidate drops the cached snapshot so the next Get refetches.
func (c *KeySetCache) Invalidate() {
	c.mu.Lock()
	c.set = nil
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}
