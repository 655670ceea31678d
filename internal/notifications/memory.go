package notifications

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps records in process. Used by tests and local runs without
// a database.
type MemoryStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]Record
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]Record), now: time.Now}
}

func (s *MemoryStore) Create(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prepare(rec, s.now().UTC())
	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("notifications: duplicate id %s", rec.ID)
	}
	s.records[rec.ID] = *rec
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id uuid.UUID, upd StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	if !CanTransition(rec.Status, upd.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, upd.Status)
	}
	rec.Status = upd.Status
	rec.Reason = upd.Reason
	rec.Attempts = upd.Attempts
	if upd.RawResponse != "" {
		rec.RawResponse = upd.RawResponse
	}
	if upd.SentAt != nil {
		sentAt := *upd.SentAt
		rec.SentAt = &sentAt
	}
	rec.UpdatedAt = s.now().UTC()
	s.records[id] = rec
	return nil
}

func (s *MemoryStore) Stats(_ context.Context, since time.Time) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats Stats
	for _, rec := range s.records {
		if rec.Direction != DirectionOutbound {
			continue
		}
		if rec.Status == StatusPending || rec.Status == StatusEnqueued {
			stats.Pending++
		}
		if rec.CreatedAt.Before(since) {
			continue
		}
		stats.Total++
		switch rec.Status {
		case StatusSent:
			stats.Sent++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (s *MemoryStore) DailyCounts(_ context.Context, since time.Time) ([]DailyCount, error) {
	s.mu.Lock()
	byDay := make(map[time.Time]*DailyCount)
	for _, rec := range s.records {
		if rec.Direction != DirectionOutbound || rec.CreatedAt.Before(since) {
			continue
		}
		day := UTCDay(rec.CreatedAt)
		c, ok := byDay[day]
		if !ok {
			c = &DailyCount{Day: day}
			byDay[day] = c
		}
		c.Total++
		switch rec.Status {
		case StatusSent:
			c.Sent++
		case StatusFailed:
			c.Failed++
		}
	}
	s.mu.Unlock()
	out := make([]DailyCount, 0, len(byDay))
	for _, c := range byDay {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

func (s *MemoryStore) ListRecent(_ context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.Lock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every record, oldest first. Handy in tests.
func (s *MemoryStore) All() []Record {
	s.mu.Lock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
