package dto

import (
	"time"

	"festpass/internal/model"
	"festpass/internal/pricing"
)

type TeamMember struct {
	Name string `json:"name" validate:"required,min=2,max=100,person_name"`
}

type TeamRegistrationRequest struct {
	EventID  string       `json:"event_id" validate:"required,uuid"`
	TeamName string       `json:"team_name" validate:"max=100"`
	TeamSize int          `json:"team_size" validate:"min=1,max=50"`
	Members  []TeamMember `json:"members" validate:"max=50,dive"`
}

// CreateOrderRequest carries no amount: the total is always computed server side.
type CreateOrderRequest struct {
	Name              string                    `json:"name" validate:"required,min=2,max=100,person_name"`
	Email             string                    `json:"email" validate:"required,email,max=255"`
	Phone             string                    `json:"phone" validate:"required,in_mobile"`
	College           string                    `json:"college" validate:"required,min=2,max=200"`
	Year              string                    `json:"year" validate:"required,max=20"`
	Department        string                    `json:"department" validate:"required,max=100"`
	EventIDs          []string                  `json:"event_ids" validate:"required,min=1,max=12,dive,uuid"`
	TeamRegistrations []TeamRegistrationRequest `json:"team_registrations" validate:"max=12,dive"`
}

type OrderInfo struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type CreateOrderResponse struct {
	Order    OrderInfo      `json:"order"`
	TicketID string         `json:"ticket_id"`
	KeyID    string         `json:"key_id,omitempty"`
	Lines    []pricing.Line `json:"lines"`
}

type VerifyPaymentRequest struct {
	OrderID   string `json:"razorpay_order_id" validate:"required,max=64"`
	PaymentID string `json:"razorpay_payment_id" validate:"required,max=64"`
	Signature string `json:"razorpay_signature" validate:"required,max=128"`
}

type VerifyPaymentResponse struct {
	Success  bool   `json:"success"`
	TicketID string `json:"ticket_id"`
	Message  string `json:"message"`
}

type EventSummary struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Category  string     `json:"category"`
	EventDate *time.Time `json:"event_date,omitempty"`
	Venue     string     `json:"venue,omitempty"`
}

type RegistrationLookupResponse struct {
	Registration model.Registration `json:"registration"`
	Events       []EventSummary     `json:"events"`
}

type EventResponse struct {
	ID                   string     `json:"id"`
	Slug                 string     `json:"slug"`
	Name                 string     `json:"name"`
	Category             string     `json:"category"`
	Description          string     `json:"description,omitempty"`
	Fee                  int64      `json:"fee"`
	FeeMode              string     `json:"fee_mode"`
	TeamPolicy           string     `json:"team_policy"`
	TeamSizeMin          int        `json:"team_size_min"`
	TeamSizeMax          int        `json:"team_size_max"`
	MaxParticipants      int        `json:"max_participants"`
	AvailableSeats       int        `json:"available_seats"`
	RegistrationDeadline *time.Time `json:"registration_deadline,omitempty"`
	EventDate            *time.Time `json:"event_date,omitempty"`
	Venue                string     `json:"venue,omitempty"`
}

func NewEventResponse(e model.Event) EventResponse {
	lo, hi := e.TeamRange()
	return EventResponse{
		ID:                   e.ID.String(),
		Slug:                 e.Slug,
		Name:                 e.Name,
		Category:             e.Category,
		Description:          e.Description,
		Fee:                  e.Fee,
		FeeMode:              string(e.FeeMode),
		TeamPolicy:           e.TeamPolicy(),
		TeamSizeMin:          lo,
		TeamSizeMax:          hi,
		MaxParticipants:      e.MaxParticipants,
		AvailableSeats:       e.SeatsLeft(),
		RegistrationDeadline: e.RegistrationDeadline,
		EventDate:            e.EventDate,
		Venue:                e.Venue,
	}
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=128"`
}

type LoginResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresAt   time.Time   `json:"expires_at"`
	User        model.Staff `json:"user"`
}

type RegistrationListResponse struct {
	Registrations []model.Registration `json:"registrations"`
	Total         int                  `json:"total"`
	Page          int                  `json:"page"`
	Limit         int                  `json:"limit"`
}

type CheckInResponse struct {
	Success     bool      `json:"success"`
	Message     string    `json:"message"`
	TicketID    string    `json:"ticket_id"`
	CheckedInAt time.Time `json:"checked_in_at"`
}

// Job kinds carried on the pass/notification queue.
const (
	JobPassRegenerate  = "pass.regenerate"
	JobNotifyConfirmed = "notify.confirmed"
)

type RegistrationJobMessage struct {
	Kind           string    `json:"kind"`
	RegistrationID string    `json:"registration_id"`
	Attempt        int       `json:"attempt"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
}

// RegistrationListQuery is the admin list filter as it arrives on the query string.
type RegistrationListQuery struct {
	Status  string `form:"status" validate:"max=16"`
	EventID string `form:"event_id" validate:"omitempty,uuid"`
	Search  string `form:"search" validate:"max=100"`
	Date    string `form:"date" validate:"max=10"`
	Page    int    `form:"page" validate:"gte=0"`
	Limit   int    `form:"limit" validate:"gte=0"`
}

type PassResponse struct {
	TicketID string `json:"ticket_id"`
	QRCode   string `json:"qr_code"`
}
