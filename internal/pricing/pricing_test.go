package pricing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"festpass/internal/apperr"
	"festpass/internal/model"
)

type PricingSuite struct {
	suite.Suite
	now      time.Time
	flat     model.Event
	perHead  model.Event
	squad    model.Event
	inactive model.Event
	catalog  []model.Event
}

func TestPricingSuite(t *testing.T) {
	suite.Run(t, new(PricingSuite))
}

func (s *PricingSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.flat = model.Event{
		ID: uuid.New(), Name: "CodeStorm", Category: "technical",
		Fee: 50000, FeeMode: model.FeePerTeam,
		MaxParticipants: 100, IsActive: true,
	}
	s.perHead = model.Event{
		ID: uuid.New(), Name: "Box Cricket", Category: "sports",
		Fee: 20000, FeeMode: model.FeePerParticipant,
		MaxParticipants: 60, TeamSizeMin: 1, TeamSizeMax: 6, IsActive: true,
	}
	s.squad = model.Event{
		ID: uuid.New(), Name: "RoboWars", Category: "technical",
		Fee: 30000, FeeMode: model.FeePerTeam,
		MaxParticipants: 50, TeamSizeMin: 3, TeamSizeMax: 5, IsActive: true,
	}
	s.inactive = model.Event{
		ID: uuid.New(), Name: "Retired", Category: "cultural",
		Fee: 10000, MaxParticipants: 10, IsActive: false,
	}
	s.catalog = []model.Event{s.flat, s.perHead, s.squad, s.inactive}
}

func members(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "Member"
	}
	return out
}

func (s *PricingSuite) compute(sel Selection) (Quote, error) {
	return Compute(s.catalog, sel, s.now)
}

func (s *PricingSuite) TestFlatPlusPerParticipantTotal() {
	q, err := s.compute(Selection{
		EventIDs: []uuid.UUID{s.flat.ID, s.perHead.ID},
		Teams: []model.TeamRegistration{
			{EventID: s.perHead.ID, TeamSize: 3, Members: members(3)},
		},
	})
	s.Require().NoError(err)
	s.Equal(int64(110000), q.Total)
	s.Require().Len(q.Lines, 2)
	s.Equal(int64(50000), q.Lines[0].Charge)
	s.Equal(int64(60000), q.Lines[1].Charge)
	s.Equal(1, q.Lines[0].Seats)
	s.Equal(3, q.Lines[1].Seats)
	s.Equal("technical", q.PrimaryCategory())
}

func (s *PricingSuite) TestTeamRangeBounds() {
	cases := []struct {
		name    string
		size    int
		members int
		ok      bool
	}{
		{"below minimum", 2, 2, false},
		{"above maximum", 6, 6, false},
		{"inside range", 4, 4, true},
		{"member count mismatch", 3, 4, false},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			q, err := s.compute(Selection{
				EventIDs: []uuid.UUID{s.squad.ID},
				Teams: []model.TeamRegistration{
					{EventID: s.squad.ID, TeamSize: tc.size, Members: members(tc.members)},
				},
			})
			if tc.ok {
				s.Require().NoError(err)
				s.Equal(s.squad.Fee, q.Total)
				return
			}
			s.Require().Error(err)
			s.True(apperr.Is(err, apperr.KindValidation))
			s.Contains(err.Error(), "RoboWars")
		})
	}
}

func (s *PricingSuite) TestTeamEventRequiresTeamPayload() {
	_, err := s.compute(Selection{EventIDs: []uuid.UUID{s.squad.ID}})
	s.Require().Error(err)
	s.Contains(err.Error(), "Team details are required")
}

func (s *PricingSuite) TestIndividualEventRejectsTeamSmuggling() {
	_, err := s.compute(Selection{
		EventIDs: []uuid.UUID{s.flat.ID},
		Teams: []model.TeamRegistration{
			{EventID: s.flat.ID, TeamSize: 4, Members: members(4)},
		},
	})
	s.Require().Error(err)
	s.True(apperr.Is(err, apperr.KindValidation))
	s.Contains(err.Error(), "individual event")

	q, err := s.compute(Selection{
		EventIDs: []uuid.UUID{s.flat.ID},
		Teams: []model.TeamRegistration{
			{EventID: s.flat.ID, TeamSize: 1, Members: members(1)},
		},
	})
	s.Require().NoError(err)
	s.Equal(s.flat.Fee, q.Total)
}

func (s *PricingSuite) TestInactiveOrUnknownFailsWholeSelection() {
	_, err := s.compute(Selection{EventIDs: []uuid.UUID{s.flat.ID, s.inactive.ID, s.perHead.ID}})
	s.Require().Error(err)
	s.Contains(err.Error(), "invalid or inactive")

	_, err = s.compute(Selection{EventIDs: []uuid.UUID{s.flat.ID, uuid.New()}})
	s.Require().Error(err)
	s.True(apperr.Is(err, apperr.KindValidation))
}

func (s *PricingSuite) TestSelectionShape() {
	_, err := s.compute(Selection{})
	s.Require().Error(err)
	s.Contains(err.Error(), "at least one")

	_, err = s.compute(Selection{EventIDs: []uuid.UUID{s.flat.ID, s.flat.ID}})
	s.Require().Error(err)
	s.Contains(err.Error(), "more than once")

	ids := make([]uuid.UUID, MaxEvents+1)
	for i := range ids {
		ids[i] = uuid.New()
	}
	_, err = s.compute(Selection{EventIDs: ids})
	s.Require().Error(err)
	s.Contains(err.Error(), "more than 12")

	_, err = s.compute(Selection{
		EventIDs: []uuid.UUID{s.flat.ID},
		Teams:    []model.TeamRegistration{{EventID: s.squad.ID, TeamSize: 3, Members: members(3)}},
	})
	s.Require().Error(err)
	s.Contains(err.Error(), "not selected")
}

func (s *PricingSuite) TestCapacity() {
	full := s.flat
	full.CurrentParticipants = full.MaxParticipants
	_, err := Compute([]model.Event{full}, Selection{EventIDs: []uuid.UUID{full.ID}}, s.now)
	s.Require().Error(err)
	s.True(apperr.Is(err, apperr.KindCapacity))

	nearlyFull := s.squad
	nearlyFull.CurrentParticipants = nearlyFull.MaxParticipants - 2
	_, err = Compute([]model.Event{nearlyFull}, Selection{
		EventIDs: []uuid.UUID{nearlyFull.ID},
		Teams:    []model.TeamRegistration{{EventID: nearlyFull.ID, TeamSize: 3, Members: members(3)}},
	}, s.now)
	s.Require().Error(err)
	s.True(apperr.Is(err, apperr.KindCapacity))
}

func (s *PricingSuite) TestRegistrationDeadline() {
	closed := s.flat
	past := s.now.Add(-time.Hour)
	closed.RegistrationDeadline = &past
	_, err := Compute([]model.Event{closed}, Selection{EventIDs: []uuid.UUID{closed.ID}}, s.now)
	s.Require().Error(err)
	s.Contains(err.Error(), "has closed")
}

func TestZeroTotalRejected(t *testing.T) {
	free := model.Event{ID: uuid.New(), Name: "Open Mic", MaxParticipants: 10, IsActive: true}
	_, err := Compute([]model.Event{free}, Selection{EventIDs: []uuid.UUID{free.ID}}, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid total amount")
}
