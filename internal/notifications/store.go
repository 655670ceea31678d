package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists notification records. Implementations enforce CanTransition
// atomically and return ErrInvalidTransition when the current status does not
// allow the update.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id uuid.UUID) (*Record, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, upd StatusUpdate) error
	Stats(ctx context.Context, since time.Time) (Stats, error)
	// DailyCounts groups outbound records created at or after since by UTC
	// day, oldest first. Days without records are omitted.
	DailyCounts(ctx context.Context, since time.Time) ([]DailyCount, error)
	ListRecent(ctx context.Context, limit int) ([]Record, error)
}
