package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of *pgxpool.Pool the Postgres collaborators need.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ContractorStore implements Contractors on the contractors table.
type ContractorStore struct {
	pool PgxPool
}

func NewContractorStore(pool PgxPool) *ContractorStore {
	return &ContractorStore{pool: pool}
}

const contractorColumns = `id, name, phone, active, specialties, unit_id`

func scanContractor(row pgx.Row) (*Contractor, error) {
	var (
		c      Contractor
		unitID sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Active, &c.Specialties, &unitID); err != nil {
		return nil, err
	}
	if unitID.Valid {
		value := unitID.Int64
		c.UnitID = &value
	}
	return &c, nil
}

func (s *ContractorStore) FindByPhone(ctx context.Context, phone string) (*Contractor, error) {
	query := `SELECT ` + contractorColumns + ` FROM contractors WHERE phone = $1 LIMIT 1`
	c, err := scanContractor(s.pool.QueryRow(ctx, query, phone))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("directory: find contractor by phone: %w", err)
	}
	return c, nil
}

func (s *ContractorStore) Get(ctx context.Context, id int64) (*Contractor, error) {
	query := `SELECT ` + contractorColumns + ` FROM contractors WHERE id = $1`
	c, err := scanContractor(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("directory: get contractor: %w", err)
	}
	return c, nil
}

func (s *ContractorStore) ListActive(ctx context.Context) ([]Contractor, error) {
	query := `SELECT ` + contractorColumns + ` FROM contractors WHERE active ORDER BY name`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("directory: list contractors: %w", err)
	}
	defer rows.Close()
	var out []Contractor
	for rows.Next() {
		c, err := scanContractor(rows)
		if err != nil {
			return nil, fmt.Errorf("directory: scan contractor: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// TicketStore implements Tickets on the tickets table.
type TicketStore struct {
	pool PgxPool
}

func NewTicketStore(pool PgxPool) *TicketStore {
	return &TicketStore{pool: pool}
}

const ticketColumns = `id, number, contractor_id, title, description, status, deadline, priority`

func scanTicket(row pgx.Row) (*Ticket, error) {
	var (
		t      Ticket
		status string
	)
	if err := row.Scan(&t.ID, &t.Number, &t.ContractorID, &t.Title, &t.Description, &status, &t.Deadline, &t.Priority); err != nil {
		return nil, err
	}
	t.Status = TicketStatus(status)
	return &t, nil
}

func collectTickets(rows pgx.Rows) ([]Ticket, error) {
	defer rows.Close()
	var out []Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("directory: scan ticket: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func statusStrings(statuses []TicketStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func (s *TicketStore) Get(ctx context.Context, id int64) (*Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1`
	t, err := scanTicket(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("directory: get ticket: %w", err)
	}
	return t, nil
}

func (s *TicketStore) ListByContractor(ctx context.Context, contractorID int64, statuses []TicketStatus) ([]Ticket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE contractor_id = $1 AND status = ANY($2)
		ORDER BY deadline ASC
	`
	rows, err := s.pool.Query(ctx, query, contractorID, statusStrings(statuses))
	if err != nil {
		return nil, fmt.Errorf("directory: list contractor tickets: %w", err)
	}
	return collectTickets(rows)
}

func (s *TicketStore) ListDueBefore(ctx context.Context, before time.Time) ([]Ticket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE status NOT IN ('done', 'cancelled') AND deadline <= $1
		ORDER BY deadline ASC
	`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("directory: list due tickets: %w", err)
	}
	return collectTickets(rows)
}

func (s *TicketStore) Accept(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE tickets SET status = 'accepted', updated_at = now() WHERE id = $1 AND status = 'waiting'`, id)
	if err != nil {
		return fmt.Errorf("directory: accept ticket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InventoryStore implements Inventory on the stock_items table.
type InventoryStore struct {
	pool PgxPool
}

func NewInventoryStore(pool PgxPool) *InventoryStore {
	return &InventoryStore{pool: pool}
}

func (s *InventoryStore) FindItem(ctx context.Context, code string) (*StockItem, error) {
	var item StockItem
	err := s.pool.QueryRow(ctx, `SELECT code, name, unit FROM stock_items WHERE upper(code) = $1`, strings.ToUpper(code)).
		Scan(&item.Code, &item.Name, &item.Unit)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("directory: find stock item: %w", err)
	}
	return &item, nil
}

// PurchaseStore implements Purchases on the purchase_requests table.
type PurchaseStore struct {
	pool PgxPool
}

func NewPurchaseStore(pool PgxPool) *PurchaseStore {
	return &PurchaseStore{pool: pool}
}

func (s *PurchaseStore) CreateRequest(ctx context.Context, req *PurchaseRequest) error {
	query := `
		INSERT INTO purchase_requests (item_code, quantity, contractor_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	if err := s.pool.QueryRow(ctx, query, req.ItemCode, req.Quantity.String(), req.ContractorID).Scan(&req.ID, &req.CreatedAt); err != nil {
		return fmt.Errorf("directory: create purchase request: %w", err)
	}
	return nil
}

// RoleStore implements Roles on the role_members table.
type RoleStore struct {
	pool PgxPool
}

func NewRoleStore(pool PgxPool) *RoleStore {
	return &RoleStore{pool: pool}
}

func (s *RoleStore) PhonesForRole(ctx context.Context, role string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT phone FROM role_members WHERE role = $1 ORDER BY phone`, role)
	if err != nil {
		return nil, fmt.Errorf("directory: list role members: %w", err)
	}
	defer rows.Close()
	var phones []string
	for rows.Next() {
		var phone string
		if err := rows.Scan(&phone); err != nil {
			return nil, fmt.Errorf("directory: scan role member: %w", err)
		}
		phones = append(phones, phone)
	}
	return phones, rows.Err()
}
