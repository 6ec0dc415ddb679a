package model

import (
	"time"

	"github.com/google/uuid"
)

type FeeMode string

const (
	FeePerTeam        FeeMode = "per_team"
	FeePerParticipant FeeMode = "per_participant"
)

func (m FeeMode) IsValid() bool {
	return m == FeePerTeam || m == FeePerParticipant
}

type Event struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	Slug                 string     `db:"slug" json:"slug"`
	Name                 string     `db:"name" json:"name"`
	Category             string     `db:"category" json:"category"`
	Description          string     `db:"description" json:"description,omitempty"`
	Fee                  int64      `db:"fee" json:"fee"`
	FeeMode              FeeMode    `db:"fee_mode" json:"fee_mode"`
	MaxParticipants      int        `db:"max_participants" json:"max_participants"`
	CurrentParticipants  int        `db:"current_participants" json:"current_participants"`
	TeamSizeMin          int        `db:"team_size_min" json:"team_size_min"`
	TeamSizeMax          int        `db:"team_size_max" json:"team_size_max"`
	IsActive             bool       `db:"is_active" json:"is_active"`
	RegistrationDeadline *time.Time `db:"registration_deadline" json:"registration_deadline,omitempty"`
	EventDate            *time.Time `db:"event_date" json:"event_date,omitempty"`
	Venue                string     `db:"venue" json:"venue,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// TeamRange returns the inclusive bounds on team size. An event without a
// team policy is individual (1..1); a single configured bound is a fixed size.
func (e Event) TeamRange() (int, int) {
	lo, hi := e.TeamSizeMin, e.TeamSizeMax
	switch {
	case lo <= 0 && hi <= 0:
		return 1, 1
	case lo <= 0:
		lo = hi
	case hi <= 0:
		hi = lo
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// TeamPolicy is one of "individual", "fixed" or "range".
func (e Event) TeamPolicy() string {
	lo, hi := e.TeamRange()
	switch {
	case hi == 1:
		return "individual"
	case lo == hi:
		return "fixed"
	default:
		return "range"
	}
}

func (e Event) SeatsLeft() int {
	left := e.MaxParticipants - e.CurrentParticipants
	if left < 0 {
		return 0
	}
	return left
}

type TeamRegistration struct {
	EventID  uuid.UUID `json:"event_id"`
	TeamName string    `json:"team_name,omitempty"`
	TeamSize int       `json:"team_size"`
	Members  []string  `json:"members"`
}

type Registration struct {
	ID            uuid.UUID          `db:"id" json:"id"`
	TicketID      string             `db:"ticket_id" json:"ticket_id"`
	Name          string             `db:"name" json:"name"`
	Email         string             `db:"email" json:"email"`
	Phone         string             `db:"phone" json:"phone"`
	College       string             `db:"college" json:"college"`
	Year          string             `db:"year" json:"year"`
	Department    string             `db:"department" json:"department"`
	EventIDs      []uuid.UUID        `db:"event_ids" json:"event_ids"`
	Teams         []TeamRegistration `db:"teams" json:"team_registrations,omitempty"`
	TotalAmount   int64              `db:"total_amount" json:"total_amount"`
	PaymentStatus PaymentStatus      `db:"payment_status" json:"payment_status"`
	OrderID       string             `db:"razorpay_order_id" json:"razorpay_order_id,omitempty"`
	PaymentID     string             `db:"razorpay_payment_id" json:"razorpay_payment_id,omitempty"`
	Signature     string             `db:"razorpay_signature" json:"-"`
	CheckedIn     bool               `db:"checked_in" json:"checked_in"`
	CheckedInAt   *time.Time         `db:"checked_in_at" json:"checked_in_at,omitempty"`
	CheckedInBy   *uuid.UUID         `db:"checked_in_by" json:"checked_in_by,omitempty"`
	PassAsset     string             `db:"qr_code" json:"qr_code,omitempty"`
	CreatedAt     time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `db:"updated_at" json:"updated_at"`
}

// Seats is the number of participant places the registration holds per event:
// the team size where a team payload exists, one otherwise.
func (r Registration) Seats() map[uuid.UUID]int {
	seats := make(map[uuid.UUID]int, len(r.EventIDs))
	for _, id := range r.EventIDs {
		seats[id] = 1
	}
	for _, t := range r.Teams {
		if _, ok := seats[t.EventID]; ok && t.TeamSize > 0 {
			seats[t.EventID] = t.TeamSize
		}
	}
	return seats
}

type StaffRole string

const (
	RoleAdmin StaffRole = "admin"
	RoleStaff StaffRole = "staff"
)

type Staff struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	Name         string    `db:"name" json:"name"`
	Role         StaffRole `db:"role" json:"role"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type RegistrationFilter struct {
	Status  PaymentStatus
	EventID *uuid.UUID
	Search  string
	Date    *time.Time
	Page    int
	Limit   int
}

func (f RegistrationFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

type EventOccupancy struct {
	ID                  uuid.UUID `json:"id"`
	Name                string    `json:"name"`
	Category            string    `json:"category"`
	CurrentParticipants int       `json:"current_participants"`
	MaxParticipants     int       `json:"max_participants"`
}

type Stats struct {
	TotalRegistrations int              `json:"total_registrations"`
	TotalRevenue       int64            `json:"total_revenue"`
	CheckedIn          int              `json:"checked_in"`
	PendingPayments    int              `json:"pending_payments"`
	Events             []EventOccupancy `json:"events"`
}
