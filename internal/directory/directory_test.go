package directory

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContractorStore_FindByPhone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT id, name, phone, active, specialties, unit_id FROM contractors WHERE phone").
		WithArgs("5511987654321").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "phone", "active", "specialties", "unit_id"}).
			AddRow(int64(3), "João Eletricista", "5511987654321", true, []string{"eletrica"}, int64(9)))

	c, err := NewContractorStore(mock).FindByPhone(context.Background(), "5511987654321")
	require.NoError(t, err)
	assert.Equal(t, "João Eletricista", c.Name)
	require.NotNil(t, c.UnitID)
	assert.Equal(t, int64(9), *c.UnitID)
}

func TestContractorStore_FindByPhoneMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM contractors").
		WithArgs("5511000000000").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "phone", "active", "specialties", "unit_id"}))

	_, err = NewContractorStore(mock).FindByPhone(context.Background(), "5511000000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTicketStore_ListByContractor(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	deadline := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM tickets").
		WithArgs(int64(3), []string{"waiting", "accepted", "in_progress"}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "number", "contractor_id", "title", "description", "status", "deadline", "priority"}).
			AddRow(int64(1), "GMM-0001", int64(3), "Troca de lâmpada", "", "accepted", deadline, 1))

	tickets, err := NewTicketStore(mock).ListByContractor(context.Background(), 3, ActiveTicketStatuses)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, TicketAccepted, tickets[0].Status)
	assert.True(t, tickets[0].Overdue(deadline.Add(time.Minute)))
}

func TestTicketStore_AcceptOnlyWaiting(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewTicketStore(mock)
	mock.ExpectExec("UPDATE tickets SET status = 'accepted'").
		WithArgs(int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.Accept(context.Background(), 1))

	mock.ExpectExec("UPDATE tickets SET status = 'accepted'").
		WithArgs(int64(2)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, store.Accept(context.Background(), 2), ErrNotFound)
}

func TestPurchaseStore_CreateRequest(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	createdAt := time.Now().UTC()
	mock.ExpectQuery("INSERT INTO purchase_requests").
		WithArgs("CABO10", "2.5", int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(77), createdAt))

	req := &PurchaseRequest{ItemCode: "CABO10", Quantity: decimal.RequireFromString("2.5"), ContractorID: 3}
	require.NoError(t, NewPurchaseStore(mock).CreateRequest(context.Background(), req))
	assert.Equal(t, int64(77), req.ID)
}

func TestRoleStore_PhonesForRole(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT phone FROM role_members").
		WithArgs("manager").
		WillReturnRows(pgxmock.NewRows([]string{"phone"}).AddRow("5511911111111").AddRow("5511922222222"))

	phones, err := NewRoleStore(mock).PhonesForRole(context.Background(), "manager")
	require.NoError(t, err)
	assert.Equal(t, []string{"5511911111111", "5511922222222"}, phones)
}

func TestMemory_Collaborators(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	m.AddContractor(Contractor{ID: 1, Name: "Ana", Phone: "5511987654321", Active: true})
	m.AddContractor(Contractor{ID: 2, Name: "Bruno", Phone: "5511987654322"})
	m.AddTicket(Ticket{ID: 10, ContractorID: 1, Status: TicketWaiting, Deadline: now.Add(48 * time.Hour)})
	m.AddTicket(Ticket{ID: 11, ContractorID: 1, Status: TicketInProgress, Deadline: now.Add(-time.Hour)})
	m.AddTicket(Ticket{ID: 12, ContractorID: 1, Status: TicketDone, Deadline: now.Add(-time.Hour)})
	m.AddItem(StockItem{Code: "cabo10", Name: "Cabo 10mm", Unit: "m"})

	c, err := m.ContractorView().FindByPhone(ctx, "5511987654321")
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.ID)

	active, _ := m.ContractorView().ListActive(ctx)
	assert.Len(t, active, 1)

	tickets, _ := m.TicketView().ListByContractor(ctx, 1, ActiveTicketStatuses)
	require.Len(t, tickets, 2)
	assert.Equal(t, int64(11), tickets[0].ID, "sorted by deadline")

	due, _ := m.TicketView().ListDueBefore(ctx, now.Add(48*time.Hour))
	assert.Len(t, due, 2)

	require.NoError(t, m.TicketView().Accept(ctx, 10))
	assert.ErrorIs(t, m.TicketView().Accept(ctx, 10), ErrNotFound)

	item, err := m.FindItem(ctx, "CABO10")
	require.NoError(t, err)
	assert.Equal(t, "Cabo 10mm", item.Name)
}
