package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaic/creator/common/logger"
	rediscommon "github.com/mosaic/creator/common/redis"
)

func newTestLimiter(t *testing.T) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = raw.Close() })
	log := logger.Discard()
	return NewRateLimiter(rediscommon.NewClient(raw, log), log), mr
}

func TestCheckUploadLimit(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := limiter.CheckUploadLimit(ctx, "user-1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, int64(i), res.CurrentCount)
	}

	res, err := limiter.CheckUploadLimit(ctx, "user-1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(3), res.Limit)
	assert.Equal(t, int64(60), res.RetryAfterSeconds)

	// Other users have their own window
	res, err = limiter.CheckUploadLimit(ctx, "user-2", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	// The window expires
	mr.FastForward(61 * time.Second)
	res, err = limiter.CheckUploadLimit(ctx, "user-1", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(1), res.CurrentCount)
}

func TestResetUploadLimit(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	ctx := context.Background()

	_, err := limiter.CheckUploadLimit(ctx, "user-1", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, mr.Exists("rate_limit:upload:user-1"))

	require.NoError(t, limiter.ResetUploadLimit(ctx, "user-1"))
	assert.False(t, mr.Exists("rate_limit:upload:user-1"))
}

func TestCheckUploadLimit_RedisDown(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	mr.Close()

	_, err := limiter.CheckUploadLimit(context.Background(), "user-1", 1, time.Minute)
	assert.Error(t, err)
}
