// Package conversation turns inbound chat text from contractors into
// directives: continue a stateful flow, run a # command, apply an automation
// rule, or forward the message to a manager.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultStateTTL is how long a flow survives without a new message.
const DefaultStateTTL = 24 * time.Hour

// State remembers which multi-step flow a phone is in.
type State struct {
	Phone     string          `json:"phone"`
	Flow      string          `json:"flow"`
	Context   json.RawMessage `json:"context,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Fresh reports whether the state was touched within ttl of now.
func (s State) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.UpdatedAt) < ttl
}

// StateStore persists conversation state per phone. Load returns nil, nil
// when nothing is stored. Writes are last-write-wins.
type StateStore interface {
	Load(ctx context.Context, phone string) (*State, error)
	Save(ctx context.Context, state State) error
	Clear(ctx context.Context, phone string) error
}

// RedisStateStore keeps state as JSON under a key that expires with the flow.
type RedisStateStore struct {
	redis  redis.Cmdable
	ttl    time.Duration
	tracer trace.Tracer
}

func NewRedisStateStore(client redis.Cmdable, ttl time.Duration, tracer trace.Tracer) *RedisStateStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	if tracer == nil {
		tracer = otel.Tracer("relay.internal.conversation.state")
	}
	return &RedisStateStore{redis: client, ttl: ttl, tracer: tracer}
}

func stateKey(phone string) string {
	return fmt.Sprintf("conversation_state:%s", phone)
}

func (s *RedisStateStore) Load(ctx context.Context, phone string) (*State, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_state")
	defer span.End()

	data, err := s.redis.Get(ctx, stateKey(phone)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load state: %w", err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to decode state: %w", err)
	}
	return &state, nil
}

func (s *RedisStateStore) Save(ctx context.Context, state State) error {
	ctx, span := s.tracer.Start(ctx, "conversation.save_state")
	defer span.End()

	if strings.TrimSpace(state.Phone) == "" {
		return fmt.Errorf("conversation: state phone required")
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(state)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal state: %w", err)
	}
	if err := s.redis.Set(ctx, stateKey(state.Phone), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist state: %w", err)
	}
	return nil
}

func (s *RedisStateStore) Clear(ctx context.Context, phone string) error {
	ctx, span := s.tracer.Start(ctx, "conversation.clear_state")
	defer span.End()

	if err := s.redis.Del(ctx, stateKey(phone)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to clear state: %w", err)
	}
	return nil
}

// MemoryStateStore keeps state in process. Expiry is left to the router's
// freshness check.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]State)}
}

func (s *MemoryStateStore) Load(_ context.Context, phone string) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[phone]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (s *MemoryStateStore) Save(_ context.Context, state State) error {
	if strings.TrimSpace(state.Phone) == "" {
		return fmt.Errorf("conversation: state phone required")
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.states[state.Phone] = state
	s.mu.Unlock()
	return nil
}

func (s *MemoryStateStore) Clear(_ context.Context, phone string) error {
	s.mu.Lock()
	delete(s.states, phone)
	s.mu.Unlock()
	return nil
}
