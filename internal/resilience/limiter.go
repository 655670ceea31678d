package resilience

import (
	"context"
	"time"

	"github.com/wolfman30/contractor-relay/pkg/logging"
)

// LimiterConfig configures a RateLimiter.
type LimiterConfig struct {
	Key    string
	Limit  int
	Window time.Duration
}

// RateLimiter caps API calls per fixed window across all workers. The window
// starts at the first recorded call and ends when its key expires.
type RateLimiter struct {
	store  CounterStore
	key    string
	limit  int
	window time.Duration
	logger *logging.Logger
}

// NewRateLimiter creates a limiter over store. Defaults: 60 per minute.
func NewRateLimiter(store CounterStore, cfg LimiterConfig, logger *logging.Logger) *RateLimiter {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Key == "" {
		cfg.Key = "chatapi:rate"
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &RateLimiter{
		store:  store,
		key:    cfg.Key,
		limit:  cfg.Limit,
		window: cfg.Window,
		logger: logger,
	}
}

// Check reports whether another call fits in the current window and how many
// remain. It is a read-only view for dashboards; senders use Reserve.
func (l *RateLimiter) Check(ctx context.Context) (bool, int) {
	used, _, err := l.store.Get(ctx, l.key)
	if err != nil {
		// Fail open
		l.logger.Error("rate limiter unavailable", "error", err, "key", l.key)
		return true, l.limit
	}
	remaining := l.limit - int(used)
	if remaining < 0 {
		remaining = 0
	}
	return used < int64(l.limit), remaining
}

// Reserve claims one call in the current window. The increment and the limit
// comparison are one step, so concurrent workers never claim more than Limit
// slots per window. Refused reservations still increment the counter.
func (l *RateLimiter) Reserve(ctx context.Context) bool {
	count, err := l.store.Incr(ctx, l.key, l.window, false)
	if err != nil {
		// Fail open
		l.logger.Error("rate limiter reserve failed", "error", err, "key", l.key)
		return true
	}
	return count <= int64(l.limit)
}

// Limit returns the configured capacity per window.
func (l *RateLimiter) Limit() int {
	return l.limit
}

// ResetIn returns how long until the current window ends.
func (l *RateLimiter) ResetIn(ctx context.Context) time.Duration {
	ttl, err := l.store.TTL(ctx, l.key)
	if err != nil {
		return l.window
	}
	return ttl
}
