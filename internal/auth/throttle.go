package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter bounds login attempts per username.
type Limiter interface {
	// Attempt claims one attempt for key before the password is checked and
	// reports whether it is within the limit. Claimed attempts count as
	// failures until Reset.
	Attempt(ctx context.Context, key string) (bool, error)
	// Reset forgets the attempts recorded for key.
	Reset(ctx context.Context, key string) error
}

// NoopLimiter never blocks.
type NoopLimiter struct{}

func (NoopLimiter) Attempt(context.Context, string) (bool, error) { return true, nil }
func (NoopLimiter) Reset(context.Context, string) error           { return nil }

const failureKeyPrefix = "auth:login_failures:"

// The window starts at the first attempt. A counter left without a TTL gets
// one on the next attempt.
var attemptScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 or redis.call("PTTL", KEYS[1]) < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisLimiter keeps a fixed-window attempt counter per key in Redis.
type RedisLimiter struct {
	client *redis.Client
	max    int64
	window time.Duration
}

// NewRedisLimiter constructs a limiter. A non-positive max disables blocking.
func NewRedisLimiter(client *redis.Client, max int, window time.Duration) *RedisLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{client: client, max: int64(max), window: window}
}

// Attempt implements Limiter.
func (l *RedisLimiter) Attempt(ctx context.Context, key string) (bool, error) {
	if l.max <= 0 {
		return true, nil
	}
	count, err := attemptScript.Run(ctx, l.client, []string{failureKeyPrefix + key}, l.window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("auth: claim login attempt: %w", err)
	}
	return count <= l.max, nil
}

// Reset implements Limiter.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, failureKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("auth: reset failures: %w", err)
	}
	return nil
}

var (
	_ Limiter = (*RedisLimiter)(nil)
	_ Limiter = NoopLimiter{}
)
