package resilience

import (
	"context"
	"time"

	"github.com/wolfman30/contractor-relay/pkg/logging"
)

// BreakerState is the externally visible breaker state.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// BreakerConfig configures a CircuitBreaker.
type BreakerConfig struct {
	// KeyPrefix scopes the breaker keys; one breaker per outbound channel.
	KeyPrefix        string
	FailureThreshold int
	// FailureWindow is refreshed on every failure; that much quiet time
	// resets the consecutive-failure count.
	FailureWindow time.Duration
	Cooldown      time.Duration
	// ProbeTimeout bounds how long a half-open probe holds the trial slot. It
	// must exceed the chat API timeout.
	ProbeTimeout time.Duration
	Now          func() time.Time
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "chatapi"
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.FailureWindow <= 0 {
		c.FailureWindow = 5 * time.Minute
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 10 * time.Minute
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 30 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// BreakerSnapshot is a point-in-time view for dashboards.
type BreakerSnapshot struct {
	State     BreakerState `json:"state"`
	Failures  int64        `json:"failures"`
	OpenUntil *time.Time   `json:"open_until,omitempty"`
}

// CircuitBreaker guards the chat API. All state lives in the CounterStore:
//
//	<prefix>:failures    consecutive failure count, TTL = FailureWindow
//	<prefix>:open_until  unix ms; present means OPEN, elapsed means HALF_OPEN
//	<prefix>:probe       half-open trial lock, TTL = ProbeTimeout
//
// Store errors fail open: the attempt is allowed and the error logged.
type CircuitBreaker struct {
	store  CounterStore
	cfg    BreakerConfig
	logger *logging.Logger

	failuresKey  string
	openUntilKey string
	probeKey     string
}

// NewCircuitBreaker creates a breaker over store.
func NewCircuitBreaker(store CounterStore, cfg BreakerConfig, logger *logging.Logger) *CircuitBreaker {
	if logger == nil {
		logger = logging.Default()
	}
	cfg = cfg.withDefaults()
	return &CircuitBreaker{
		store:        store,
		cfg:          cfg,
		logger:       logger,
		failuresKey:  cfg.KeyPrefix + ":failures",
		openUntilKey: cfg.KeyPrefix + ":open_until",
		probeKey:     cfg.KeyPrefix + ":probe",
	}
}

// ShouldAttempt reports whether a send may call the API now. In HALF_OPEN
// exactly one caller wins the probe slot.
func (b *CircuitBreaker) ShouldAttempt(ctx context.Context) bool {
	openUntil, open, err := b.store.Get(ctx, b.openUntilKey)
	if err != nil {
		b.logger.Error("circuit breaker state unavailable", "error", err, "key", b.openUntilKey)
		return true
	}
	if !open {
		return true
	}
	if b.nowMillis() < openUntil {
		return false
	}
	won, err := b.store.SetNX(ctx, b.probeKey, 1, b.cfg.ProbeTimeout)
	if err != nil {
		b.logger.Error("circuit breaker probe lock failed", "error", err, "key", b.probeKey)
		return true
	}
	if won {
		b.logger.Info("circuit breaker half-open, probing")
	}
	return won
}

// RecordSuccess closes a half-open breaker and resets the failure streak.
// A success that lands while the breaker is still cooling down is ignored.
func (b *CircuitBreaker) RecordSuccess(ctx context.Context) {
	openUntil, open, err := b.store.Get(ctx, b.openUntilKey)
	if err != nil {
		b.logger.Error("circuit breaker state unavailable", "error", err, "key", b.openUntilKey)
		return
	}
	if open && b.nowMillis() < openUntil {
		return
	}
	if err := b.store.Del(ctx, b.failuresKey, b.openUntilKey, b.probeKey); err != nil {
		b.logger.Error("circuit breaker reset failed", "error", err)
		return
	}
	if open {
		b.logger.Info("circuit breaker closed after successful probe")
	}
}

// RecordFailure counts a failed API call. The threshold-th consecutive
// failure opens the breaker; a failed probe re-opens it with a fresh cooldown.
func (b *CircuitBreaker) RecordFailure(ctx context.Context) {
	openUntil, open, err := b.store.Get(ctx, b.openUntilKey)
	if err != nil {
		b.logger.Error("circuit breaker state unavailable", "error", err, "key", b.openUntilKey)
		return
	}
	if open {
		if b.nowMillis() < openUntil {
			return
		}
		b.open(ctx, "probe failed")
		return
	}
	failures, err := b.store.Incr(ctx, b.failuresKey, b.cfg.FailureWindow, true)
	if err != nil {
		b.logger.Error("circuit breaker failure count failed", "error", err, "key", b.failuresKey)
		return
	}
	if failures >= int64(b.cfg.FailureThreshold) {
		b.open(ctx, "failure threshold reached")
	}
}

func (b *CircuitBreaker) open(ctx context.Context, reason string) {
	until := b.cfg.Now().Add(b.cfg.Cooldown)
	if err := b.store.Set(ctx, b.openUntilKey, until.UnixMilli(), 0); err != nil {
		b.logger.Error("circuit breaker open failed", "error", err)
		return
	}
	if err := b.store.Del(ctx, b.failuresKey, b.probeKey); err != nil {
		b.logger.Error("circuit breaker counter clear failed", "error", err)
	}
	b.logger.Warn("circuit breaker opened", "reason", reason, "open_until", until.UTC().Format(time.RFC3339))
}

// Snapshot reports the current state without changing it.
func (b *CircuitBreaker) Snapshot(ctx context.Context) (BreakerSnapshot, error) {
	failures, _, err := b.store.Get(ctx, b.failuresKey)
	if err != nil {
		return BreakerSnapshot{}, err
	}
	openUntil, open, err := b.store.Get(ctx, b.openUntilKey)
	if err != nil {
		return BreakerSnapshot{}, err
	}
	if !open {
		return BreakerSnapshot{State: StateClosed, Failures: failures}, nil
	}
	until := time.UnixMilli(openUntil).UTC()
	state := StateOpen
	if b.nowMillis() >= openUntil {
		state = StateHalfOpen
	}
	return BreakerSnapshot{State: state, Failures: failures, OpenUntil: &until}, nil
}

func (b *CircuitBreaker) nowMillis() int64 {
	return b.cfg.Now().UnixMilli()
}
