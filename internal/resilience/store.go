// Package resilience holds the shared failure and throughput guards that sit
// in front of the chat API: a circuit breaker and a fixed-window rate limiter,
// both backed by a CounterStore so every worker process sees the same state.
package resilience

import (
	"context"
	"time"
)

// CounterStore is the atomic, TTL-capable key store the breaker and limiter
// share. Redis backs it in production; MemoryStore backs it in tests and
// single-process runs.
type CounterStore interface {
	// Incr atomically increments key and returns the new value. The TTL is
	// applied on the first increment, or on every increment when refresh is set.
	Incr(ctx context.Context, key string, ttl time.Duration, refresh bool) (int64, error)
	// Get returns the integer stored at key and whether it exists.
	Get(ctx context.Context, key string) (int64, bool, error)
	// Set stores value at key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value int64, ttl time.Duration) error
	// SetNX stores value only when key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value int64, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	// TTL returns the remaining lifetime of key, or zero when it has none.
	TTL(ctx context.Context, key string) (time.Duration, error)
}
