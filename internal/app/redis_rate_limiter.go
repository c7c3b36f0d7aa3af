/**
 * @description
 * Redis-backed fixed-window rate limiter for verification submissions. The
 * counter increment and expiry arming run in a single Lua script so the
 * window cannot be left without a TTL if the process dies between commands.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: Redis client.
 */

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// rateLimitScript increments the window counter and arms its expiry
// atomically, returning the post-increment count.
var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisRateLimiter allows at most maxAttempts consumptions of a key per
// window.
type RedisRateLimiter struct {
	client      *redis.Client
	maxAttempts int64
	window      time.Duration
}

// NewRedisRateLimiter creates a limiter over the given client.
func NewRedisRateLimiter(client *redis.Client, maxAttempts int64, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:      client,
		maxAttempts: maxAttempts,
		window:      window,
	}
}

// ConsumeRateLimit records an attempt for key and reports whether it is
// within the window's budget.
func (l *RedisRateLimiter) ConsumeRateLimit(ctx context.Context, key string) (bool, error) {
	count, err := rateLimitScript.Run(ctx, l.client, []string{"ratelimit:" + key}, l.window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit script failed: %w", err)
	}
	return count <= l.maxAttempts, nil
}
