// Package ratelimit counts verification attempts per key in fixed windows.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type AttemptLimiter interface {
	// Attempt records one attempt for key and reports whether it is within
	// the limit. Counting and checking happen in one step, so concurrent
	// callers cannot all slip under the limit.
	Attempt(ctx context.Context, key string) (bool, error)
	// Reset forgets every recorded attempt for key.
	Reset(ctx context.Context, key string) error
}

// Nop never limits. It is used when no Redis is configured.
type Nop struct{}

func (Nop) Attempt(context.Context, string) (bool, error) { return true, nil }
func (Nop) Reset(context.Context, string) error           { return nil }

// The window starts at the first attempt and is not extended by later ones.
var attemptScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if n > tonumber(ARGV[2]) then
  return 0
end
return 1
`)

var errNilClient = errors.New("ratelimit: redis client is nil")

type RedisLimiter struct {
	client      redis.UniversalClient
	prefix      string
	maxAttempts int
	window      time.Duration
}

func NewRedisLimiter(client redis.UniversalClient, prefix string, maxAttempts int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "gatekeeper:attempts"
	}
	return &RedisLimiter{client: client, prefix: prefix, maxAttempts: maxAttempts, window: window}
}

func (l *RedisLimiter) key(k string) string { return l.prefix + ":" + k }

func (l *RedisLimiter) Attempt(ctx context.Context, key string) (bool, error) {
	if l.client == nil {
		return false, errNilClient
	}
	ok, err := attemptScript.Run(ctx, l.client, []string{l.key(key)}, l.window.Milliseconds(), l.maxAttempts).Int()
	if err != nil {
		return false, err
	}
	return ok == 1, nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if l.client == nil {
		return errNilClient
	}
	return l.client.Del(ctx, l.key(key)).Err()
}
