package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var recordRowColumns = []string{"id", "direction", "category", "ticket_id", "phone", "message", "content_hash",
	"status", "reason", "attempts", "priority", "raw_response", "created_at", "sent_at", "updated_at"}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusSent, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusEnqueued, true},
		{StatusEnqueued, StatusPending, true},
		{StatusEnqueued, StatusSent, true},
		{StatusFailed, StatusSent, true},
		{StatusFailed, StatusFailed, true},
		{StatusSent, StatusPending, false},
		{StatusSent, StatusFailed, false},
		{StatusFailed, StatusPending, false},
		{StatusReceived, StatusSent, false},
		{StatusPending, StatusReceived, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestPostgresStore_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	ticket := int64(42)
	rec := &Record{
		Direction: DirectionOutbound,
		Category:  CategoryCreation,
		TicketID:  &ticket,
		Phone:     "5511987654321",
		Message:   "Novo chamado",
		Priority:  1,
	}
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(pgxmock.AnyArg(), "outbound", "creation", &ticket, "5511987654321", "Novo chamado", ContentHash("Novo chamado"),
			"pending", "", 0, 1, "", pgxmock.AnyArg(), (*time.Time)(nil), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Create(context.Background(), rec))
	assert.NotEqual(t, uuid.Nil, rec.ID)
	assert.Equal(t, StatusPending, rec.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	id := uuid.New()
	sentAt := time.Now().UTC()
	mock.ExpectExec("UPDATE notifications").
		WithArgs(id, "sent", "", 1, `{"ok":true}`, &sentAt, []string{"pending", "enqueued", "failed"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = store.UpdateStatus(context.Background(), id, StatusUpdate{Status: StatusSent, Attempts: 1, RawResponse: `{"ok":true}`, SentAt: &sentAt})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateStatusRejectsTerminal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	id := uuid.New()
	mock.ExpectExec("UPDATE notifications").
		WithArgs(id, "failed", "HTTP_ERROR", 2, "boom", (*time.Time)(nil), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT status FROM notifications").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("sent"))

	err = store.UpdateStatus(context.Background(), id, StatusUpdate{Status: StatusFailed, Reason: ReasonHTTPError, Attempts: 2, RawResponse: "boom"})
	assert.True(t, errors.Is(err, ErrInvalidTransition), "got %v", err)
}

func TestPostgresStore_Stats(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	since := time.Now().Add(-24 * time.Hour)
	mock.ExpectQuery("SELECT").
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{"total", "sent", "failed", "pending"}).AddRow(10, 8, 2, 3))

	stats, err := NewPostgresStore(mock).Stats(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 10, Sent: 8, Failed: 2, Pending: 3}, stats)
	assert.InDelta(t, 80.0, stats.DeliveryRate(), 0.001)
}

func TestPostgresStore_DailyCounts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	since := time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC)
	day1 := time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("GROUP BY day").
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{"day", "total", "sent", "failed"}).
			AddRow(day1, 12, 10, 2).
			AddRow(day2, 4, 4, 0))

	counts, err := NewPostgresStore(mock).DailyCounts(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, []DailyCount{
		{Day: day1, Total: 12, Sent: 10, Failed: 2},
		{Day: day2, Total: 4, Sent: 4},
	}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DailyCountsQueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("GROUP BY day").WillReturnError(errors.New("connection reset"))

	_, err = NewPostgresStore(mock).DailyCounts(context.Background(), time.Now())
	assert.ErrorContains(t, err, "daily counts")
}

func TestPostgresStore_ListRecent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	id := uuid.New()
	mock.ExpectQuery("SELECT id, direction").
		WithArgs(20).
		WillReturnRows(pgxmock.NewRows(recordRowColumns).
			AddRow(id, "outbound", "reminder", int64(7), "5511987654321", "Lembrete", "hash",
				"sent", "", 1, 1, "{}", now, now, now).
			AddRow(uuid.New(), "inbound", "inbound", nil, "5511900000000", "#STATUS", "hash2",
				"received", "", 0, 0, "", now, nil, now))

	records, err := NewPostgresStore(mock).ListRecent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, id, records[0].ID)
	require.NotNil(t, records[0].TicketID)
	assert.Equal(t, int64(7), *records[0].TicketID)
	require.NotNil(t, records[0].SentAt)
	assert.Nil(t, records[1].TicketID)
	assert.Nil(t, records[1].SentAt)
	assert.Equal(t, StatusReceived, records[1].Status)
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT id, direction").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(recordRowColumns))

	_, err = NewPostgresStore(mock).Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Lifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec := &Record{Direction: DirectionOutbound, Category: CategoryReminder, Phone: "5511987654321", Message: "oi"}
	require.NoError(t, store.Create(ctx, rec))

	require.NoError(t, store.UpdateStatus(ctx, rec.ID, StatusUpdate{Status: StatusEnqueued}))
	require.NoError(t, store.UpdateStatus(ctx, rec.ID, StatusUpdate{Status: StatusFailed, Reason: ReasonNetworkError, Attempts: 1, RawResponse: "timeout"}))
	sentAt := time.Now()
	require.NoError(t, store.UpdateStatus(ctx, rec.ID, StatusUpdate{Status: StatusSent, Attempts: 2, SentAt: &sentAt}))

	err := store.UpdateStatus(ctx, rec.ID, StatusUpdate{Status: StatusPending})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, got.Status)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, "timeout", got.RawResponse, "raw response survives an update without one")

	_, err = store.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_StatsAndRecent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		rec := &Record{Direction: DirectionOutbound, Category: CategoryCreation, Phone: "5511987654321", Message: "m"}
		require.NoError(t, store.Create(ctx, rec))
		if i == 0 {
			require.NoError(t, store.UpdateStatus(ctx, rec.ID, StatusUpdate{Status: StatusSent, Attempts: 1}))
		}
	}
	require.NoError(t, store.Create(ctx, &Record{Direction: DirectionInbound, Category: CategoryInbound, Status: StatusReceived, Message: "in"}))

	stats, err := store.Stats(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 3, Sent: 1, Pending: 2}, stats)

	counts, err := store.DailyCounts(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.NotEmpty(t, counts)
	total := 0
	for _, c := range counts {
		total += c.Total
	}
	assert.Equal(t, 3, total, "inbound records are not counted")

	recent, err := store.ListRecent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}
