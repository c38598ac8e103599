package api

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

const refreshTokenBlacklistKeyPrefix = "auth:refresh:blacklist:"

// fixedWindowScript increments the window counter and arms its expiry in one round trip.
var fixedWindowScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// rateLimiter is a fixed-window counter per key. It fails open when redis is absent or down.
type rateLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

func (r rateLimiter) allow(ctx context.Context, key string) bool {
	if r.client == nil || r.limit <= 0 || r.window <= 0 {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
	defer cancel()

	bucket := time.Now().UTC().Truncate(r.window).Unix()
	redisKey := r.prefix + key + ":" + strconv.FormatInt(bucket, 10)
	count, err := fixedWindowScript.Run(ctx, r.client, []string{redisKey}, r.window.Milliseconds()).Int64()
	if err != nil {
		return true
	}
	return count <= int64(r.limit)
}

// refreshRevocations blacklists refresh token ids until they expire.
type refreshRevocations struct {
	client redis.UniversalClient
}

func (r refreshRevocations) revoke(ctx context.Context, jti string, expiresAt *jwt.NumericDate, fallback time.Duration) error {
	if r.client == nil {
		return nil
	}
	ttl := fallback
	if expiresAt != nil {
		ttl = time.Until(expiresAt.Time)
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return r.client.Set(ctx, refreshTokenBlacklistKeyPrefix+jti, "revoked", ttl).Err()
}

func (r refreshRevocations) isRevoked(ctx context.Context, jti string) (bool, error) {
	if r.client == nil {
		return false, nil
	}
	err := r.client.Get(ctx, refreshTokenBlacklistKeyPrefix+jti).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, err
	}
}
