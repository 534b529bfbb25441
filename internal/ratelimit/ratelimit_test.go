package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/streamgate/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestStreamKeyLimiterExhaustsBurst(t *testing.T) {
	client := newClient(t)
	cfg := config.Config{RateLimit: config.RateLimitConfig{StreamKeyRate: 0.001, StreamKeyBurst: 2}}
	limiter := NewStreamKeyLimiter(cfg, client)
	require.True(t, limiter.Enabled())

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		res, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))

	res, err = limiter.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestStreamKeyLimiterDisabledWithoutRedis(t *testing.T) {
	limiter := NewStreamKeyLimiter(config.Config{RateLimit: config.RateLimitConfig{StreamKeyRate: 1, StreamKeyBurst: 1}}, nil)
	assert.False(t, limiter.Enabled())

	res, err := limiter.Allow(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestLockerIsExclusive(t *testing.T) {
	locker := NewLocker(newClient(t))
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "streamgate:provision:sess_1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, "streamgate:provision:sess_1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "streamgate:provision:sess_1", "someone-else"))
	_, ok, _ = locker.TryLock(ctx, "streamgate:provision:sess_1", time.Minute)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "streamgate:provision:sess_1", token))
	_, ok, err = locker.TryLock(ctx, "streamgate:provision:sess_1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
