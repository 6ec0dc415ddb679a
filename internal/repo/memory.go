package repo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"festpass/internal/model"
)

// Memory is a process-local Repository for development and tests. A single
// mutex makes every method atomic, which gives the same conditional-update
// guarantees as the Postgres implementation.
type Memory struct {
	mu            sync.Mutex
	now           func() time.Time
	events        map[uuid.UUID]*model.Event
	registrations map[uuid.UUID]*model.Registration
	staff         map[string]*model.Staff
}

func NewMemory() *Memory {
	return &Memory{
		now:           time.Now,
		events:        make(map[uuid.UUID]*model.Event),
		registrations: make(map[uuid.UUID]*model.Registration),
		staff:         make(map[string]*model.Staff),
	}
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) ListActiveEvents(ctx context.Context) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Event, 0, len(m.events))
	for _, e := range m.events {
		if e.IsActive {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *Memory) GetActiveEventsByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Event, error) {
	return m.eventsByIDs(ids, true), nil
}

func (m *Memory) GetEventsByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Event, error) {
	return m.eventsByIDs(ids, false), nil
}

func (m *Memory) eventsByIDs(ids []uuid.UUID, activeOnly bool) []model.Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]model.Event, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if e, ok := m.events[id]; ok && (e.IsActive || !activeOnly) {
			out = append(out, *e)
		}
	}
	return out
}

func (m *Memory) UpsertEvent(ctx context.Context, e *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, existing := range m.events {
		if existing.Slug == e.Slug {
			e.ID = existing.ID
			e.CurrentParticipants = existing.CurrentParticipants
			e.CreatedAt = existing.CreatedAt
			e.UpdatedAt = now
			cp := *e
			m.events[e.ID] = &cp
			return nil
		}
	}
	if e.ID == uuid.Nil {
		e.ID = EventIDForSlug(e.Slug)
	}
	e.CreatedAt, e.UpdatedAt = now, now
	cp := *e
	m.events[e.ID] = &cp
	return nil
}

func (m *Memory) CreatePendingRegistration(ctx context.Context, reg *model.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.registrations {
		if r.TicketID == reg.TicketID {
			return ErrDuplicateTicket
		}
	}
	if reg.ID == uuid.Nil {
		reg.ID = uuid.New()
	}
	now := m.now()
	reg.PaymentStatus = model.StatusPending
	reg.CreatedAt, reg.UpdatedAt = now, now
	m.registrations[reg.ID] = cloneRegistration(reg)
	return nil
}

func (m *Memory) GetRegistrationByID(ctx context.Context, id uuid.UUID) (*model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.registrations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRegistration(r), nil
}

func (m *Memory) GetRegistrationByTicketID(ctx context.Context, ticketID string) (*model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.registrations {
		if r.TicketID == ticketID {
			return cloneRegistration(r), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) GetPendingByOrderID(ctx context.Context, orderID string) (*model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var found *model.Registration
	for _, r := range m.registrations {
		if r.OrderID == orderID && r.PaymentStatus == model.StatusPending {
			if found == nil || r.CreatedAt.Before(found.CreatedAt) {
				found = r
			}
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return cloneRegistration(found), nil
}

func (m *Memory) MarkPaid(ctx context.Context, id uuid.UUID, paymentID, signature string) (*model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := model.MarkPaid
	r, ok := m.registrations[id]
	if !ok || r.PaymentStatus != t.From {
		return nil, ErrStaleState
	}
	now := m.now()
	r.PaymentStatus = t.To
	r.PaymentID = paymentID
	r.Signature = signature
	r.UpdatedAt = now

	var oversold []string
	for eventID, seats := range r.Seats() {
		e, ok := m.events[eventID]
		if !ok {
			continue
		}
		if e.CurrentParticipants+seats > e.MaxParticipants {
			oversold = append(oversold, eventID.String())
		}
		e.CurrentParticipants += seats
		e.UpdatedAt = now
	}
	if len(oversold) > 0 {
		sort.Strings(oversold)
		return cloneRegistration(r), fmt.Errorf("%w: %s", ErrOversold, strings.Join(oversold, ","))
	}
	return cloneRegistration(r), nil
}

func (m *Memory) MarkFailed(ctx context.Context, orderID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := model.MarkFailed
	now := m.now()
	n := 0
	for _, r := range m.registrations {
		if r.OrderID != orderID || r.PaymentStatus != t.From {
			continue
		}
		r.PaymentStatus = t.To
		r.UpdatedAt = now
		n++
	}
	return n, nil
}

func (m *Memory) SetPassAsset(ctx context.Context, id uuid.UUID, asset string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.registrations[id]
	if !ok || r.PaymentStatus != model.StatusPaid {
		return ErrNotPaid
	}
	r.PassAsset = asset
	r.UpdatedAt = m.now()
	return nil
}

func (m *Memory) CheckIn(ctx context.Context, id uuid.UUID, staffID uuid.UUID, at time.Time) (*model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.registrations[id]
	if !ok {
		return nil, ErrNotFound
	}
	if r.PaymentStatus != model.StatusPaid || r.CheckedIn {
		return classifyCheckIn(cloneRegistration(r))
	}
	r.CheckedIn = true
	r.CheckedInAt = &at
	r.CheckedInBy = &staffID
	r.UpdatedAt = m.now()
	return cloneRegistration(r), nil
}

func (m *Memory) ListRegistrations(ctx context.Context, f model.RegistrationFilter) ([]model.Registration, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	search := strings.ToLower(strings.TrimSpace(f.Search))
	matched := make([]model.Registration, 0)
	for _, r := range m.registrations {
		if f.Status != "" && r.PaymentStatus != f.Status {
			continue
		}
		if f.EventID != nil && !containsID(r.EventIDs, *f.EventID) {
			continue
		}
		if search != "" && !matchesSearch(r, search) {
			continue
		}
		if f.Date != nil && r.CreatedAt.UTC().Format("2006-01-02") != f.Date.UTC().Format("2006-01-02") {
			continue
		}
		matched = append(matched, *cloneRegistration(r))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	from := min(f.Offset(), total)
	to := min(from+f.Limit, total)
	return matched[from:to], total, nil
}

func (m *Memory) Stats(ctx context.Context) (*model.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := &model.Stats{Events: make([]model.EventOccupancy, 0)}
	for _, r := range m.registrations {
		switch r.PaymentStatus {
		case model.StatusPaid:
			st.TotalRegistrations++
			st.TotalRevenue += r.TotalAmount
			if r.CheckedIn {
				st.CheckedIn++
			}
		case model.StatusPending:
			st.PendingPayments++
		}
	}
	for _, e := range m.events {
		if !e.IsActive {
			continue
		}
		st.Events = append(st.Events, model.EventOccupancy{
			ID:                  e.ID,
			Name:                e.Name,
			Category:            e.Category,
			CurrentParticipants: e.CurrentParticipants,
			MaxParticipants:     e.MaxParticipants,
		})
	}
	sort.Slice(st.Events, func(i, j int) bool {
		if st.Events[i].Category != st.Events[j].Category {
			return st.Events[i].Category < st.Events[j].Category
		}
		return st.Events[i].Name < st.Events[j].Name
	})
	return st, nil
}

func (m *Memory) GetStaffByEmail(ctx context.Context, email string) (*model.Staff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.staff[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) UpsertStaff(ctx context.Context, s *model.Staff) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.Email = strings.ToLower(strings.TrimSpace(s.Email))
	if existing, ok := m.staff[s.Email]; ok {
		s.ID = existing.ID
		s.CreatedAt = existing.CreatedAt
	} else {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		s.CreatedAt = m.now()
	}
	cp := *s
	m.staff[s.Email] = &cp
	return nil
}

func cloneRegistration(r *model.Registration) *model.Registration {
	cp := *r
	cp.EventIDs = append([]uuid.UUID(nil), r.EventIDs...)
	cp.Teams = make([]model.TeamRegistration, len(r.Teams))
	for i, t := range r.Teams {
		t.Members = append([]string(nil), t.Members...)
		cp.Teams[i] = t
	}
	if r.CheckedInAt != nil {
		at := *r.CheckedInAt
		cp.CheckedInAt = &at
	}
	if r.CheckedInBy != nil {
		by := *r.CheckedInBy
		cp.CheckedInBy = &by
	}
	return &cp
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func matchesSearch(r *model.Registration, q string) bool {
	for _, field := range []string{r.Name, r.Email, r.TicketID, r.Phone} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

var (
	_ Repository = (*Memory)(nil)
	_ Repository = (*Postgres)(nil)
)
