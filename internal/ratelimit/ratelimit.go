// Package ratelimit implements a Redis-backed fixed-window request counter.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/malyga99/job-flow-auth/pkg/errors"
)

// incrWithExpiry atomically increments the window counter and sets the
// expiry on the increment that creates it. Atomicity matters: a separate
// INCR+EXPIRE pair can leave an immortal counter if the client dies between
// the two commands.
var incrWithExpiry = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("TTL", KEYS[1])
return {current, ttl}
`)

// Limiter is a fixed-window rate limiter. The window boundary burst
// (up to 2x limit across two adjacent windows) is an accepted imprecision
// traded for a single round trip per check.
//
// Failure policy is fail-closed: if the counter store is unreachable, the
// request is rejected rather than admitting unlimited traffic.
type Limiter struct {
	client redis.Scripter
	limit  int64
	window time.Duration
}

// New creates a limiter allowing limit requests per window for each key.
func New(client redis.Scripter, limit int64, window time.Duration) *Limiter {
	return &Limiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// CheckAndIncrement counts the request against the key's current window.
// It returns nil when the request is admitted, a RateLimited error carrying
// the retry-after hint when the limit is exceeded, and an Internal error
// when the counter store is unavailable.
func (l *Limiter) CheckAndIncrement(ctx context.Context, key string) error {
	res, err := incrWithExpiry.Run(ctx, l.client, []string{l.key(key)}, int(l.window.Seconds())).Result()
	if err != nil {
		return apperrors.Internal(fmt.Errorf("rate limit counter unavailable: %w", err))
	}

	vals, ok := res.([]any)
	if !ok || len(vals) != 2 {
		return apperrors.Internal(fmt.Errorf("rate limit counter returned unexpected reply %v", res))
	}

	count, _ := vals[0].(int64)
	ttl, _ := vals[1].(int64)

	if count > l.limit {
		retryAfter := l.window
		if ttl > 0 {
			retryAfter = time.Duration(ttl) * time.Second
		}
		return apperrors.RateLimited(retryAfter)
	}

	return nil
}

func (l *Limiter) key(key string) string {
	return "ratelimit:" + key
}

// LoginKey builds the counter key for the login endpoint and a client IP.
func LoginKey(clientIP string) string {
	return "auth:login:" + clientIP
}
