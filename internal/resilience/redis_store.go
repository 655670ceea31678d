package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrScript increments KEYS[1] and sets its expiry (ms) in the same round
// trip, so a crash between INCR and PEXPIRE cannot leave an immortal counter.
var incrScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 or ARGV[2] == '1' then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// RedisStore implements CounterStore on Redis.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore wraps a go-redis client.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration, refresh bool) (int64, error) {
	flag := "0"
	if refresh {
		flag = "1"
	}
	n, err := incrScript.Run(ctx, s.client, []string{key}, ttl.Milliseconds(), flag).Int64()
	if err != nil {
		return 0, fmt.Errorf("resilience: incr %s: %w", key, err)
	}
	return n, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (int64, bool, error) {
	n, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("resilience: get %s: %w", key, err)
	}
	return n, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value int64, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("resilience: set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SetNX(ctx context.Context, key string, value int64, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("resilience: setnx %s: %w", key, err)
	}
	return ok, nil
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("resilience: del: %w", err)
	}
	return nil
}

func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("resilience: ttl %s: %w", key, err)
	}
	// go-redis reports -1/-2 (no expiry / missing) as negative durations.
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
