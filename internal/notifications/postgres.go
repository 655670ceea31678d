package notifications

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of *pgxpool.Pool used by PostgresStore.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists records in the notifications table.
type PostgresStore struct {
	pool PgxPool
	now  func() time.Time
}

func NewPostgresStore(pool PgxPool) *PostgresStore {
	if pool == nil {
		return nil
	}
	return &PostgresStore{pool: pool, now: time.Now}
}

const recordColumns = `id, direction, category, ticket_id, phone, message, content_hash,
	status, reason, attempts, priority, raw_response, created_at, sent_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, rec *Record) error {
	prepare(rec, s.now().UTC())
	query := `
		INSERT INTO notifications (` + recordColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`
	_, err := s.pool.Exec(ctx, query,
		rec.ID, string(rec.Direction), string(rec.Category), rec.TicketID, rec.Phone, rec.Message, rec.ContentHash,
		string(rec.Status), string(rec.Reason), rec.Attempts, rec.Priority, rec.RawResponse,
		rec.CreatedAt, rec.SentAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("notifications: insert record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM notifications WHERE id = $1`
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("notifications: get record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id uuid.UUID, upd StatusUpdate) error {
	query := `
		UPDATE notifications
		SET status = $2,
			reason = $3,
			attempts = $4,
			raw_response = COALESCE(NULLIF($5, ''), raw_response),
			sent_at = COALESCE($6, sent_at),
			updated_at = now()
		WHERE id = $1 AND status = ANY($7)
	`
	tag, err := s.pool.Exec(ctx, query, id, string(upd.Status), string(upd.Reason), upd.Attempts, upd.RawResponse, upd.SentAt, sourceStatuses(upd.Status))
	if err != nil {
		return fmt.Errorf("notifications: update status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current string
	err = s.pool.QueryRow(ctx, `SELECT status FROM notifications WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("notifications: read status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, upd.Status)
}

func (s *PostgresStore) Stats(ctx context.Context, since time.Time) (Stats, error) {
	query := `
		SELECT
			count(*) FILTER (WHERE created_at >= $1),
			count(*) FILTER (WHERE created_at >= $1 AND status = 'sent'),
			count(*) FILTER (WHERE created_at >= $1 AND status = 'failed'),
			count(*) FILTER (WHERE status IN ('pending', 'enqueued'))
		FROM notifications
		WHERE direction = 'outbound'
	`
	var stats Stats
	if err := s.pool.QueryRow(ctx, query, since).Scan(&stats.Total, &stats.Sent, &stats.Failed, &stats.Pending); err != nil {
		return Stats{}, fmt.Errorf("notifications: stats: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) DailyCounts(ctx context.Context, since time.Time) ([]DailyCount, error) {
	query := `
		SELECT
			date_trunc('day', created_at AT TIME ZONE 'UTC') AS day,
			count(*),
			count(*) FILTER (WHERE status = 'sent'),
			count(*) FILTER (WHERE status = 'failed')
		FROM notifications
		WHERE direction = 'outbound' AND created_at >= $1
		GROUP BY day
		ORDER BY day
	`
	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("notifications: daily counts: %w", err)
	}
	defer rows.Close()
	var out []DailyCount
	for rows.Next() {
		var c DailyCount
		if err := rows.Scan(&c.Day, &c.Total, &c.Sent, &c.Failed); err != nil {
			return nil, fmt.Errorf("notifications: scan daily count: %w", err)
		}
		c.Day = UTCDay(c.Day)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + recordColumns + ` FROM notifications ORDER BY created_at DESC LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("notifications: list recent: %w", err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("notifications: scan record: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec                                 Record
		direction, category, status, reason string
		ticketID                            sql.NullInt64
		sentAt                              sql.NullTime
	)
	if err := row.Scan(
		&rec.ID, &direction, &category, &ticketID, &rec.Phone, &rec.Message, &rec.ContentHash,
		&status, &reason, &rec.Attempts, &rec.Priority, &rec.RawResponse,
		&rec.CreatedAt, &sentAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rec.Direction = Direction(direction)
	rec.Category = Category(category)
	rec.Status = Status(status)
	rec.Reason = Reason(reason)
	if ticketID.Valid {
		value := ticketID.Int64
		rec.TicketID = &value
	}
	if sentAt.Valid {
		value := sentAt.Time
		rec.SentAt = &value
	}
	return &rec, nil
}
