package ticketing

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/contractor-relay/internal/directory"
	"github.com/wolfman30/contractor-relay/internal/dispatch"
	"github.com/wolfman30/contractor-relay/internal/notifications"
	"github.com/wolfman30/contractor-relay/pkg/logging"
)

// ReminderClaims records which reminders were already sent. A Redis-backed
// resilience.CounterStore satisfies it and makes the claim global across
// processes.
type ReminderClaims interface {
	SetNX(ctx context.Context, key string, value int64, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

// ReminderJob periodically reminds contractors of tickets due soon. Each
// ticket is reminded at most once per deadline when claims are configured.
type ReminderJob struct {
	tickets     directory.Tickets
	contractors directory.Contractors
	notifier    Notifier
	claims      ReminderClaims
	logger      *logging.Logger
	interval    time.Duration
	lookahead   time.Duration
	now         func() time.Time
}

func NewReminderJob(tickets directory.Tickets, contractors directory.Contractors, notifier Notifier, logger *logging.Logger) *ReminderJob {
	if logger == nil {
		logger = logging.Default()
	}
	return &ReminderJob{
		tickets:     tickets,
		contractors: contractors,
		notifier:    notifier,
		logger:      logger,
		interval:    24 * time.Hour,
		lookahead:   48 * time.Hour,
		now:         time.Now,
	}
}

func (j *ReminderJob) WithInterval(d time.Duration) *ReminderJob {
	if d > 0 {
		j.interval = d
	}
	return j
}

func (j *ReminderJob) WithLookahead(d time.Duration) *ReminderJob {
	if d > 0 {
		j.lookahead = d
	}
	return j
}

// WithClaims deduplicates reminders across sweeps, restarts and replicas.
func (j *ReminderJob) WithClaims(claims ReminderClaims) *ReminderJob {
	j.claims = claims
	return j
}

// Run sweeps once at start and then every interval until ctx is done.
func (j *ReminderJob) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	j.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *ReminderJob) sweep(ctx context.Context) {
	n, err := j.RunOnce(ctx)
	if err != nil {
		j.logger.Error("ticket reminder sweep failed", "error", err)
		return
	}
	j.logger.Info("ticket reminder sweep done", "reminded", n)
}

// RunOnce reminds every open ticket whose deadline falls between now and
// now+lookahead. It returns how many reminders were queued.
func (j *ReminderJob) RunOnce(ctx context.Context) (int, error) {
	if j.tickets == nil || j.contractors == nil || j.notifier == nil {
		return 0, nil
	}
	now := j.now()
	due, err := j.tickets.ListDueBefore(ctx, now.Add(j.lookahead))
	if err != nil {
		return 0, fmt.Errorf("ticketing: list due tickets: %w", err)
	}
	queued := 0
	for _, t := range due {
		if t.Deadline.Before(now) {
			continue
		}
		contractor, err := j.contractors.Get(ctx, t.ContractorID)
		if err != nil || !contractor.Active {
			j.logger.Warn("skipping reminder: no active contractor", "ticket_id", t.ID, "error", err)
			continue
		}
		key := reminderKey(t)
		if !j.claim(ctx, key) {
			continue
		}
		ticketID := t.ID
		out := j.notifier.Notify(ctx, dispatch.NotifyRequest{
			Phone:    contractor.Phone,
			Message:  ReminderMessage(t),
			Category: notifications.CategoryReminder,
			TicketID: &ticketID,
		})
		if out.Queued {
			queued++
			continue
		}
		j.release(ctx, key)
	}
	return queued, nil
}

// reminderKey changes when a ticket's deadline moves to another day, so a
// rescheduled ticket is reminded again.
func reminderKey(t directory.Ticket) string {
	return fmt.Sprintf("reminder:%d:%s", t.ID, t.Deadline.UTC().Format("2006-01-02"))
}

func (j *ReminderJob) claim(ctx context.Context, key string) bool {
	if j.claims == nil {
		return true
	}
	// The claim outlives the window in which the ticket can be swept again.
	ok, err := j.claims.SetNX(ctx, key, 1, j.lookahead+24*time.Hour)
	if err != nil {
		j.logger.Warn("reminder claim unavailable; sending anyway", "key", key, "error", err)
		return true
	}
	return ok
}

func (j *ReminderJob) release(ctx context.Context, key string) {
	if j.claims == nil {
		return
	}
	if err := j.claims.Del(ctx, key); err != nil {
		j.logger.Warn("failed to release reminder claim", "key", key, "error", err)
	}
}
