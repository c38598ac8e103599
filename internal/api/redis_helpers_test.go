package api

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterFailsOpen(t *testing.T) {
	ctx := context.Background()

	assert.True(t, rateLimiter{limit: 1, window: time.Minute}.allow(ctx, "1.2.3.4"))

	unreachable := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	t.Cleanup(func() { _ = unreachable.Close() })
	limiter := rateLimiter{client: unreachable, prefix: "rate:test:", limit: 1, window: time.Minute}
	for range 3 {
		assert.True(t, limiter.allow(ctx, "1.2.3.4"))
	}
}

func TestRefreshRevocationsWithoutRedis(t *testing.T) {
	var r refreshRevocations
	require.NoError(t, r.revoke(context.Background(), "jti", nil, time.Hour))

	revoked, err := r.isRevoked(context.Background(), "jti")
	require.NoError(t, err)
	assert.False(t, revoked)
}
