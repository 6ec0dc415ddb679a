// Package pricing computes the authoritative charge for an event selection
// from catalog data and rejects invalid team compositions.
package pricing

import (
	"time"

	"github.com/google/uuid"

	"festpass/internal/apperr"
	"festpass/internal/model"
)

const MaxEvents = 12

type Selection struct {
	EventIDs []uuid.UUID
	Teams    []model.TeamRegistration
}

type Line struct {
	EventID   uuid.UUID `json:"event_id"`
	EventName string    `json:"event_name"`
	Category  string    `json:"category"`
	Seats     int       `json:"seats"`
	Charge    int64     `json:"charge"`
}

type Quote struct {
	Lines []Line `json:"lines"`
	Total int64  `json:"total"`
}

// PrimaryCategory is the category of the first selected event.
func (q Quote) PrimaryCategory() string {
	if len(q.Lines) == 0 {
		return ""
	}
	return q.Lines[0].Category
}

// Compute prices sel against a fresh catalog snapshot. It fails on the first
// problem found, in selection order, and never returns a partial quote.
func Compute(catalog []model.Event, sel Selection, now time.Time) (Quote, error) {
	if len(sel.EventIDs) == 0 {
		return Quote{}, apperr.Validation("Select at least one event")
	}
	if len(sel.EventIDs) > MaxEvents {
		return Quote{}, apperr.Validation("Cannot select more than %d events", MaxEvents)
	}

	selected := make(map[uuid.UUID]struct{}, len(sel.EventIDs))
	for _, id := range sel.EventIDs {
		if _, dup := selected[id]; dup {
			return Quote{}, apperr.Validation("Event %s is selected more than once", id)
		}
		selected[id] = struct{}{}
	}

	active := make(map[uuid.UUID]model.Event, len(catalog))
	for _, e := range catalog {
		if _, ok := selected[e.ID]; ok && e.IsActive {
			active[e.ID] = e
		}
	}
	if len(active) < len(sel.EventIDs) {
		return Quote{}, apperr.Validation("Some selected events are invalid or inactive")
	}

	teams := make(map[uuid.UUID]model.TeamRegistration, len(sel.Teams))
	for _, t := range sel.Teams {
		if _, ok := selected[t.EventID]; !ok {
			return Quote{}, apperr.Validation("Team details were submitted for an event that is not selected")
		}
		if _, dup := teams[t.EventID]; dup {
			return Quote{}, apperr.Validation("Team details for %q were submitted more than once", active[t.EventID].Name)
		}
		teams[t.EventID] = t
	}

	q := Quote{Lines: make([]Line, 0, len(sel.EventIDs))}
	for _, id := range sel.EventIDs {
		e := active[id]
		team, hasTeam := teams[id]

		if e.RegistrationDeadline != nil && now.After(*e.RegistrationDeadline) {
			return Quote{}, apperr.Validation("Registration for %q has closed", e.Name)
		}

		seats, err := seatsFor(e, team, hasTeam)
		if err != nil {
			return Quote{}, err
		}

		if e.CurrentParticipants >= e.MaxParticipants {
			return Quote{}, apperr.Capacity("Event %q is full. Please select a different event.", e.Name)
		}
		if e.CurrentParticipants+seats > e.MaxParticipants {
			return Quote{}, apperr.Capacity("Event %q has only %d seats left", e.Name, e.SeatsLeft())
		}

		charge := e.Fee
		if e.FeeMode == model.FeePerParticipant {
			charge = e.Fee * int64(seats)
		}
		q.Lines = append(q.Lines, Line{
			EventID:   e.ID,
			EventName: e.Name,
			Category:  e.Category,
			Seats:     seats,
			Charge:    charge,
		})
		q.Total += charge
	}

	if q.Total <= 0 {
		return Quote{}, apperr.Validation("Invalid total amount")
	}
	return q, nil
}

func seatsFor(e model.Event, team model.TeamRegistration, hasTeam bool) (int, error) {
	lo, hi := e.TeamRange()

	if hi == 1 {
		if !hasTeam {
			return 1, nil
		}
		if team.TeamSize != 1 {
			return 0, apperr.Validation("%q is an individual event; team size must be 1", e.Name)
		}
		if len(team.Members) != 1 {
			return 0, apperr.Validation("%q: provide exactly 1 member name for a team of 1", e.Name)
		}
		return 1, nil
	}

	if !hasTeam {
		return 0, apperr.Validation("Team details are required for %q", e.Name)
	}
	if team.TeamSize < lo || team.TeamSize > hi {
		if lo == hi {
			return 0, apperr.Validation("%q requires a team of exactly %d", e.Name, lo)
		}
		return 0, apperr.Validation("%q requires a team of %d to %d members", e.Name, lo, hi)
	}
	if len(team.Members) != team.TeamSize {
		return 0, apperr.Validation("%q: provide exactly %d member names for a team of %d", e.Name, team.TeamSize, team.TeamSize)
	}
	for _, m := range team.Members {
		if m == "" {
			return 0, apperr.Validation("%q: member names cannot be empty", e.Name)
		}
	}
	return team.TeamSize, nil
}
