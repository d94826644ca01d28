package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/malyga99/job-flow-auth/pkg/errors"
)

func setupLimiter(t *testing.T, limit int64, window time.Duration) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, limit, window), mr
}

func TestLimiter_AdmitsUpToLimit(t *testing.T) {
	limiter, _ := setupLimiter(t, 5, time.Minute)
	key := LoginKey("10.0.0.1")

	for i := 0; i < 5; i++ {
		assert.NoError(t, limiter.CheckAndIncrement(context.Background(), key))
	}

	err := limiter.CheckAndIncrement(context.Background(), key)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrRateLimited)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Greater(t, appErr.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, appErr.RetryAfter, time.Minute)
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	limiter, _ := setupLimiter(t, 1, time.Minute)

	require.NoError(t, limiter.CheckAndIncrement(context.Background(), LoginKey("10.0.0.1")))
	assert.ErrorIs(t, limiter.CheckAndIncrement(context.Background(), LoginKey("10.0.0.1")), apperrors.ErrRateLimited)

	// A different IP has its own window.
	assert.NoError(t, limiter.CheckAndIncrement(context.Background(), LoginKey("10.0.0.2")))
}

func TestLimiter_WindowReset(t *testing.T) {
	limiter, mr := setupLimiter(t, 2, time.Minute)
	key := LoginKey("10.0.0.1")

	require.NoError(t, limiter.CheckAndIncrement(context.Background(), key))
	require.NoError(t, limiter.CheckAndIncrement(context.Background(), key))
	require.ErrorIs(t, limiter.CheckAndIncrement(context.Background(), key), apperrors.ErrRateLimited)

	// Once the window elapses the counter expires and requests flow again.
	mr.FastForward(time.Minute + time.Second)

	assert.NoError(t, limiter.CheckAndIncrement(context.Background(), key))
}

func TestLimiter_FailsClosedWhenStoreDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := New(client, 5, time.Minute)

	mr.Close()

	err := limiter.CheckAndIncrement(context.Background(), LoginKey("10.0.0.1"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrRateLimited)
	assert.Equal(t, 500, apperrors.HTTPStatus(err))
}
