package automation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Store reads and writes automation rules.
type Store interface {
	ListActive(ctx context.Context) ([]Rule, error)
	ListAll(ctx context.Context) ([]Rule, error)
	Create(ctx context.Context, rule *Rule) error
}

// PgxPool is the subset of *pgxpool.Pool used by PostgresStore.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps rules in the automation_rules table.
type PostgresStore struct {
	pool PgxPool
}

func NewPostgresStore(pool PgxPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const ruleColumns = `id, keyword, match_type, action, reply_text, target_role, function_name, priority, active, created_at`

func (s *PostgresStore) ListActive(ctx context.Context) ([]Rule, error) {
	return s.list(ctx, `SELECT `+ruleColumns+` FROM automation_rules WHERE active ORDER BY priority DESC, id`)
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]Rule, error) {
	return s.list(ctx, `SELECT `+ruleColumns+` FROM automation_rules ORDER BY priority DESC, id`)
}

func (s *PostgresStore) list(ctx context.Context, query string) ([]Rule, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("automation: list rules: %w", err)
	}
	defer rows.Close()
	var out []Rule
	for rows.Next() {
		var (
			r                 Rule
			matchType, action string
		)
		if err := rows.Scan(&r.ID, &r.Keyword, &matchType, &action, &r.ReplyText, &r.TargetRole, &r.FunctionName, &r.Priority, &r.Active, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("automation: scan rule: %w", err)
		}
		r.MatchType = MatchType(matchType)
		r.Action = Action(action)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Create(ctx context.Context, rule *Rule) error {
	query := `
		INSERT INTO automation_rules (keyword, match_type, action, reply_text, target_role, function_name, priority, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err := s.pool.QueryRow(ctx, query,
		rule.Keyword, string(rule.MatchType), string(rule.Action), rule.ReplyText, rule.TargetRole, rule.FunctionName, rule.Priority, rule.Active,
	).Scan(&rule.ID, &rule.CreatedAt)
	if err != nil {
		return fmt.Errorf("automation: create rule: %w", err)
	}
	return nil
}

// MemoryStore keeps rules in process.
type MemoryStore struct {
	mu     sync.Mutex
	rules  []Rule
	nextID int64
}

func NewMemoryStore(rules ...Rule) *MemoryStore {
	s := &MemoryStore{}
	for _, r := range rules {
		rule := r
		_ = s.Create(context.Background(), &rule)
	}
	return s
}

func (s *MemoryStore) ListActive(ctx context.Context) ([]Rule, error) {
	all, _ := s.ListAll(ctx)
	out := all[:0]
	for _, r := range all {
		if r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListAll(_ context.Context) ([]Rule, error) {
	s.mu.Lock()
	out := append([]Rule(nil), s.rules...)
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

func (s *MemoryStore) Create(_ context.Context, rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	if rule.ID == 0 {
		rule.ID = s.nextID
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	s.rules = append(s.rules, *rule)
	return nil
}
