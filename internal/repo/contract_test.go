package repo

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"festpass/internal/model"
)

// repositorySuite holds behaviour every Repository must share. Concrete suites
// embed it and provide a fresh, empty store per test.
type repositorySuite struct {
	suite.Suite
	repo Repository
	ctx  context.Context
}

func (s *repositorySuite) seedEvent(slug string, capacity, lo, hi int) model.Event {
	e := &model.Event{
		Slug:            slug,
		Name:            "Event " + slug,
		Category:        "Technical",
		Fee:             50000,
		FeeMode:         model.FeePerTeam,
		MaxParticipants: capacity,
		TeamSizeMin:     lo,
		TeamSizeMax:     hi,
		IsActive:        true,
	}
	s.Require().NoError(s.repo.UpsertEvent(s.ctx, e))
	return *e
}

func (s *repositorySuite) pending(orderID string, events ...model.Event) *model.Registration {
	ids := make([]uuid.UUID, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	return &model.Registration{
		TicketID:    "MNT-TECH-" + uuid.NewString()[:8],
		Name:        "Asha Rao",
		Email:       "asha@example.com",
		Phone:       "9876543210",
		College:     "NIT",
		Year:        "3",
		Department:  "CSE",
		EventIDs:    ids,
		TotalAmount: 50000 * int64(len(events)),
		OrderID:     orderID,
	}
}

func (s *repositorySuite) event(id uuid.UUID) model.Event {
	events, err := s.repo.GetEventsByIDs(s.ctx, []uuid.UUID{id})
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	return events[0]
}

func (s *repositorySuite) TestUpsertEventKeepsIDAndCounter() {
	e := s.seedEvent("hackathon", 10, 3, 5)
	s.Equal(EventIDForSlug("hackathon"), e.ID)

	reg := s.pending("order_1", e)
	reg.Teams = []model.TeamRegistration{{EventID: e.ID, TeamName: "Bits", TeamSize: 4, Members: []string{"A", "B", "C", "D"}}}
	s.Require().NoError(s.repo.CreatePendingRegistration(s.ctx, reg))
	_, err := s.repo.MarkPaid(s.ctx, reg.ID, "pay_1", "sig")
	s.Require().NoError(err)

	again := &model.Event{Slug: "hackathon", Name: "Hackathon 2.0", Category: "Technical",
		Fee: 60000, FeeMode: model.FeePerTeam, MaxParticipants: 12, IsActive: true}
	s.Require().NoError(s.repo.UpsertEvent(s.ctx, again))
	s.Equal(e.ID, again.ID)

	got := s.event(e.ID)
	s.Equal("Hackathon 2.0", got.Name)
	s.Equal(4, got.CurrentParticipants)
}

func (s *repositorySuite) TestActiveLookupOmitsInactive() {
	active := s.seedEvent("quiz", 10, 0, 0)
	inactive := &model.Event{Slug: "closed", Name: "Closed", Category: "Cultural", Fee: 100,
		FeeMode: model.FeePerTeam, MaxParticipants: 5, IsActive: false}
	s.Require().NoError(s.repo.UpsertEvent(s.ctx, inactive))

	got, err := s.repo.GetActiveEventsByIDs(s.ctx, []uuid.UUID{active.ID, inactive.ID, uuid.New()})
	s.Require().NoError(err)
	s.Len(got, 1)
	s.Equal(active.ID, got[0].ID)

	all, err := s.repo.ListActiveEvents(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 1)
}

func (s *repositorySuite) TestPendingRowsHoldNoSeats() {
	tight := s.seedEvent("tight", 2, 0, 0)

	for i := 0; i < 5; i++ {
		reg := s.pending(fmt.Sprintf("order_%d", i), tight)
		s.Require().NoError(s.repo.CreatePendingRegistration(s.ctx, reg))
		s.Equal(model.StatusPending, reg.PaymentStatus)
	}
	s.Zero(s.event(tight.ID).CurrentParticipants)
}

func (s *repositorySuite) TestMarkPaidTakesSeats() {
	roomy := s.seedEvent("roomy", 10, 0, 0)
	team := s.seedEvent("team", 10, 2, 4)

	reg := s.pending("order_t", roomy, team)
	reg.Teams = []model.TeamRegistration{{EventID: team.ID, TeamName: "Bits", TeamSize: 3, Members: []string{"A", "B", "C"}}}
	s.Require().NoError(s.repo.CreatePendingRegistration(s.ctx, reg))

	_, err := s.repo.MarkPaid(s.ctx, reg.ID, "pay_t", "sig")
	s.Require().NoError(err)
	s.Equal(1, s.event(roomy.ID).CurrentParticipants)
	s.Equal(3, s.event(team.ID).CurrentParticipants)
}

func (s *repositorySuite) TestMarkPaidOverCapacityStillCommits() {
	roomy := s.seedEvent("roomy", 10, 0, 0)
	tight := s.seedEvent("tight", 1, 0, 0)

	first := s.pending("order_a", tight)
	late := s.pending("order_b", roomy, tight)
	s.Require().NoError(s.repo.CreatePendingRegistration(s.ctx, first))
	s.Require().NoError(s.repo.CreatePendingRegistration(s.ctx, late))

	_, err := s.repo.MarkPaid(s.ctx, first.ID, "pay_a", "sig")
	s.Require().NoError(err)

	paid, err := s.repo.MarkPaid(s.ctx, late.ID, "pay_b", "sig")
	s.Require().ErrorIs(err, ErrOversold)
	s.Contains(err.Error(), tight.ID.String())
	s.Require().NotNil(paid)
	s.Equal(model.StatusPaid, paid.PaymentStatus)

	s.Equal(1, s.event(roomy.ID).CurrentParticipants)
	s.Equal(2, s.event(tight.ID).CurrentParticipants)
	got, err := s.repo.GetRegistrationByID(s.ctx, late.ID)
	s.Require().NoError(err)
	s.Equal(model.StatusPaid, got.PaymentStatus)
}

func (s *repositorySuite) TestDuplicateTicketRejected() {
	e := s.seedEvent("solo", 10, 0, 0)
	a := s.pending("order_a", e)
	s.Require().NoError(s.repo.CreatePendingRegistration(s.ctx, a))

	b := s.pending("order_b", e)
	b.TicketID = a.TicketID
	s.ErrorIs(s.repo.CreatePendingRegistration(s.ctx, b), ErrDuplicateTicket)
	_, err := s.repo.GetPendingByOrderID(s.ctx, "order_b")
	s.ErrorIs(err, ErrNotFound)
}

func (s *repositorySuite) TestMarkPaidOnlyOnce() {
	e := s.seedEvent("solo", 10, 0, 0)
	reg := s.pending("order_x", e)
	s.Require().NoError(s.repo.CreatePendingRegistration(s.ctx, reg))

	paid, err := s.repo.MarkPaid(s.ctx, reg.ID, "pay_1", "sig")
	s.Require().NoError(err)
	s.Equal(model.StatusPaid, paid.PaymentStatus)
	s.Equal("pay_1", paid.PaymentID)

	_, err = s.repo.MarkPaid(s.ctx, reg.ID, "pay_2", "sig")
	s.ErrorIs(err, ErrStaleState)

	_, err = s.repo.GetPendingByOrderID(s.ctx, "order_x")
	s.ErrorIs(err, ErrNotFound)
}

func (s *repositorySuite) TestConcurrentMarkPaidHasOneWinner() {
	e := s.seedEvent("solo", 10, 0, 0)
	reg := s.pending("order_race", e)
	s.Require().NoError(s.repo.CreatePendingRegistration(s.ctx, reg))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.repo.MarkPaid(s.ctx, reg.ID, fmt.Sprintf("pay_%d", i), "sig"); err == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())
}

func (s *repositorySuite) TestMarkFailedLeavesCounters() {
	e := s.seedEvent("team", 10, 2, 4)
	reg := s.pending("order_f", e)
	reg.Teams = []model.TeamRegistration{{EventID: e.ID, TeamName: "Bits", TeamSize: 3, Members: []string{"A", "B", "C"}}}
	s.Require().NoError(s.repo.CreatePendingRegistration(s.ctx, reg))

	n, err := s.repo.MarkFailed(s.ctx, "order_f")
	s.Require().NoError(err)
	s.Equal(1, n)
	s.Zero(s.event(e.ID).CurrentParticipants)

	_, err = s.repo.MarkPaid(s.ctx, reg.ID, "pay_f", "sig")
	s.ErrorIs(err, ErrStaleState)

	n, err = s.repo.MarkFailed(s.ctx, "order_f")
	s.Require().NoError(err)
	s.Zero(n)

	got, err := s.repo.GetRegistrationByID(s.ctx, reg.ID)
	s.Require().NoError(err)
	s.Equal(model.StatusFailed, got.PaymentStatus)
	s.Require().Len(got.Teams, 1)
	s.Equal([]string{"A", "B", "C"}, got.Teams[0].Members)
}

func (s *repositorySuite) TestPassAssetRequiresPaid() {
	e := s.seedEvent("solo", 10, 0, 0)
	reg := s.pending("order_p", e)
	s.Require().NoError(s.repo.CreatePendingRegistration(s.ctx, reg))

	s.ErrorIs(s.repo.SetPassAsset(s.ctx, reg.ID, "data:image/png;base64,AA=="), ErrNotPaid)

	_, err := s.repo.MarkPaid(s.ctx, reg.ID, "pay", "sig")
	s.Require().NoError(err)
	s.Require().NoError(s.repo.SetPassAsset(s.ctx, reg.ID, "data:image/png;base64,AA=="))

	got, err := s.repo.GetRegistrationByTicketID(s.ctx, reg.TicketID)
	s.Require().NoError(err)
	s.Equal("data:image/png;base64,AA==", got.PassAsset)
}

func (s *repositorySuite) TestCheckInExactlyOnce() {
	e := s.seedEvent("solo", 10, 0, 0)
	reg := s.pending("order_c", e)
	s.Require().NoError(s.repo.CreatePendingRegistration(s.ctx, reg))
	staff := uuid.New()
	first := time.Now().UTC().Truncate(time.Microsecond)

	_, err := s.repo.CheckIn(s.ctx, reg.ID, staff, first)
	s.ErrorIs(err, ErrNotPaid)

	_, err = s.repo.MarkPaid(s.ctx, reg.ID, "pay", "sig")
	s.Require().NoError(err)

	got, err := s.repo.CheckIn(s.ctx, reg.ID, staff, first)
	s.Require().NoError(err)
	s.True(got.CheckedIn)
	s.Require().NotNil(got.CheckedInBy)
	s.Equal(staff, *got.CheckedInBy)

	again, err := s.repo.CheckIn(s.ctx, reg.ID, uuid.New(), first.Add(time.Minute))
	s.ErrorIs(err, ErrAlreadyCheckedIn)
	s.Require().NotNil(again.CheckedInAt)
	s.True(first.Equal(*again.CheckedInAt))
	s.Equal(staff, *again.CheckedInBy)

	_, err = s.repo.CheckIn(s.ctx, uuid.New(), staff, first)
	s.ErrorIs(err, ErrNotFound)
}

func (s *repositorySuite) TestListRegistrationsFiltersAndPages() {
	a := s.seedEvent("alpha", 50, 0, 0)
	b := s.seedEvent("beta", 50, 0, 0)
	for i := 0; i < 5; i++ {
		reg := s.pending(fmt.Sprintf("order_%d", i), a)
		if i == 4 {
			reg = s.pending("order_4", b)
			reg.Name = "Ravi Kumar"
		}
		s.Require().NoError(s.repo.CreatePendingRegistration(s.ctx, reg))
		if i%2 == 0 {
			_, err := s.repo.MarkPaid(s.ctx, reg.ID, fmt.Sprintf("pay_%d", i), "sig")
			s.Require().NoError(err)
		}
	}

	rows, total, err := s.repo.ListRegistrations(s.ctx, model.RegistrationFilter{Page: 1, Limit: 2})
	s.Require().NoError(err)
	s.Equal(5, total)
	s.Len(rows, 2)

	rows, total, err = s.repo.ListRegistrations(s.ctx, model.RegistrationFilter{Page: 3, Limit: 2})
	s.Require().NoError(err)
	s.Equal(5, total)
	s.Len(rows, 1)

	_, total, err = s.repo.ListRegistrations(s.ctx, model.RegistrationFilter{Status: model.StatusPaid, Page: 1, Limit: 50})
	s.Require().NoError(err)
	s.Equal(3, total)

	rows, total, err = s.repo.ListRegistrations(s.ctx, model.RegistrationFilter{EventID: &b.ID, Page: 1, Limit: 50})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Equal("Ravi Kumar", rows[0].Name)

	_, total, err = s.repo.ListRegistrations(s.ctx, model.RegistrationFilter{Search: "ravi", Page: 1, Limit: 50})
	s.Require().NoError(err)
	s.Equal(1, total)

	today := time.Now().UTC()
	_, total, err = s.repo.ListRegistrations(s.ctx, model.RegistrationFilter{Date: &today, Page: 1, Limit: 50})
	s.Require().NoError(err)
	s.Equal(5, total)
}

func (s *repositorySuite) TestStats() {
	e := s.seedEvent("solo", 10, 0, 0)
	paid := s.pending("order_1", e)
	open := s.pending("order_2", e)
	s.Require().NoError(s.repo.CreatePendingRegistration(s.ctx, paid))
	s.Require().NoError(s.repo.CreatePendingRegistration(s.ctx, open))
	_, err := s.repo.MarkPaid(s.ctx, paid.ID, "pay", "sig")
	s.Require().NoError(err)
	_, err = s.repo.CheckIn(s.ctx, paid.ID, uuid.New(), time.Now())
	s.Require().NoError(err)

	st, err := s.repo.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, st.TotalRegistrations)
	s.Equal(int64(50000), st.TotalRevenue)
	s.Equal(1, st.CheckedIn)
	s.Equal(1, st.PendingPayments)
	s.Require().Len(st.Events, 1)
	s.Equal(1, st.Events[0].CurrentParticipants)
}

func (s *repositorySuite) TestStaffLookupIsCaseInsensitive() {
	st := &model.Staff{Email: " Gate@Fest.in ", Name: "Gate", Role: model.RoleStaff, PasswordHash: "h1"}
	s.Require().NoError(s.repo.UpsertStaff(s.ctx, st))
	id := st.ID

	got, err := s.repo.GetStaffByEmail(s.ctx, "GATE@fest.in")
	s.Require().NoError(err)
	s.Equal(id, got.ID)
	s.Equal("gate@fest.in", got.Email)

	s.Require().NoError(s.repo.UpsertStaff(s.ctx, &model.Staff{Email: "gate@fest.in", Name: "Gate", Role: model.RoleAdmin, PasswordHash: "h2"}))
	got, err = s.repo.GetStaffByEmail(s.ctx, "gate@fest.in")
	s.Require().NoError(err)
	s.Equal(id, got.ID)
	s.Equal(model.RoleAdmin, got.Role)
	s.Equal("h2", got.PasswordHash)

	_, err = s.repo.GetStaffByEmail(s.ctx, "nobody@fest.in")
	s.ErrorIs(err, ErrNotFound)
}

type MemorySuite struct {
	repositorySuite
}

func TestMemorySuite(t *testing.T) {
	suite.Run(t, new(MemorySuite))
}

func (s *MemorySuite) SetupTest() {
	s.ctx = context.Background()
	s.repo = NewMemory()
}
