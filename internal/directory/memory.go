package directory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory implements every collaborator interface in process. Local runs and
// tests seed it directly.
type Memory struct {
	mu          sync.Mutex
	contractors map[int64]Contractor
	tickets     map[int64]Ticket
	items       map[string]StockItem
	purchases   []PurchaseRequest
	roles       map[string][]string
	nextID      int64
	now         func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		contractors: make(map[int64]Contractor),
		tickets:     make(map[int64]Ticket),
		items:       make(map[string]StockItem),
		roles:       make(map[string][]string),
		now:         time.Now,
	}
}

// ContractorView and TicketView expose the two interfaces whose method names
// collide (both have Get).
func (m *Memory) ContractorView() Contractors { return memoryContractors{m} }
func (m *Memory) TicketView() Tickets         { return memoryTickets{m} }

func (m *Memory) AddContractor(c Contractor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contractors[c.ID] = c
}

func (m *Memory) AddTicket(t Ticket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[t.ID] = t
}

func (m *Memory) AddItem(item StockItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[strings.ToUpper(item.Code)] = item
}

func (m *Memory) AddRoleMember(role, phone string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles[role] = append(m.roles[role], phone)
}

// Purchases returns the recorded purchase requests.
func (m *Memory) Purchases() []PurchaseRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PurchaseRequest(nil), m.purchases...)
}

func (m *Memory) FindItem(_ context.Context, code string) (*StockItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[strings.ToUpper(code)]
	if !ok {
		return nil, ErrNotFound
	}
	return &item, nil
}

func (m *Memory) CreateRequest(_ context.Context, req *PurchaseRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	req.ID = m.nextID
	req.CreatedAt = m.now().UTC()
	m.purchases = append(m.purchases, *req)
	return nil
}

func (m *Memory) PhonesForRole(_ context.Context, role string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.roles[role]...), nil
}

type memoryContractors struct{ m *Memory }

func (v memoryContractors) FindByPhone(_ context.Context, phone string) (*Contractor, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	for _, c := range v.m.contractors {
		if c.Phone == phone {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (v memoryContractors) Get(_ context.Context, id int64) (*Contractor, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	c, ok := v.m.contractors[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (v memoryContractors) ListActive(_ context.Context) ([]Contractor, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	var out []Contractor
	for _, c := range v.m.contractors {
		if c.Active {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type memoryTickets struct{ m *Memory }

func (v memoryTickets) Get(_ context.Context, id int64) (*Ticket, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	t, ok := v.m.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (v memoryTickets) ListByContractor(_ context.Context, contractorID int64, statuses []TicketStatus) ([]Ticket, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	var out []Ticket
	for _, t := range v.m.tickets {
		if t.ContractorID == contractorID && hasStatus(statuses, t.Status) {
			out = append(out, t)
		}
	}
	sortByDeadline(out)
	return out, nil
}

func (v memoryTickets) ListDueBefore(_ context.Context, before time.Time) ([]Ticket, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	var out []Ticket
	for _, t := range v.m.tickets {
		if t.Status == TicketDone || t.Status == TicketCancelled {
			continue
		}
		if !t.Deadline.After(before) {
			out = append(out, t)
		}
	}
	sortByDeadline(out)
	return out, nil
}

func (v memoryTickets) Accept(_ context.Context, id int64) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	t, ok := v.m.tickets[id]
	if !ok || t.Status != TicketWaiting {
		return ErrNotFound
	}
	t.Status = TicketAccepted
	v.m.tickets[id] = t
	return nil
}

func hasStatus(statuses []TicketStatus, s TicketStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func sortByDeadline(tickets []Ticket) {
	sort.Slice(tickets, func(i, j int) bool {
		if tickets[i].Deadline.Equal(tickets[j].Deadline) {
			return tickets[i].ID < tickets[j].ID
		}
		return tickets[i].Deadline.Before(tickets[j].Deadline)
	})
}
