package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"festpass/internal/model"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrOversold         = errors.New("paid registration exceeds event capacity")
	ErrStaleState       = errors.New("registration is no longer in the expected state")
	ErrNotPaid          = errors.New("registration is not paid")
	ErrAlreadyCheckedIn = errors.New("registration already checked in")
	ErrDuplicateTicket  = errors.New("ticket id already exists")
)

// Repository is the portal's persistence port. Every status change is a
// conditional update on the expected current state.
type Repository interface {
	ListActiveEvents(ctx context.Context) ([]model.Event, error)
	// GetActiveEventsByIDs returns only active events; fewer rows than ids
	// means at least one id is unknown or inactive.
	GetActiveEventsByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Event, error)
	GetEventsByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Event, error)
	UpsertEvent(ctx context.Context, e *model.Event) error

	// CreatePendingRegistration inserts the PENDING row. Pending rows hold no
	// seats, so an abandoned order never blocks capacity.
	CreatePendingRegistration(ctx context.Context, reg *model.Registration) error
	GetRegistrationByID(ctx context.Context, id uuid.UUID) (*model.Registration, error)
	GetRegistrationByTicketID(ctx context.Context, ticketID string) (*model.Registration, error)
	GetPendingByOrderID(ctx context.Context, orderID string) (*model.Registration, error)
	// MarkPaid applies PENDING->PAID to the row and takes its seats in the same
	// transaction, one conditional increment per event. ErrStaleState if the row
	// is no longer PENDING. A captured payment is never refused: when an event
	// has no room left the seats are taken anyway and the committed row comes
	// back with ErrOversold.
	MarkPaid(ctx context.Context, id uuid.UUID, paymentID, signature string) (*model.Registration, error)
	// MarkFailed applies PENDING->FAILED to rows bound to orderID. Returns the
	// number of rows moved.
	MarkFailed(ctx context.Context, orderID string) (int, error)
	SetPassAsset(ctx context.Context, id uuid.UUID, asset string) error
	// CheckIn flips checked_in for a PAID row exactly once. On ErrAlreadyCheckedIn
	// the current row is returned with the original timestamp.
	CheckIn(ctx context.Context, id uuid.UUID, staffID uuid.UUID, at time.Time) (*model.Registration, error)
	ListRegistrations(ctx context.Context, f model.RegistrationFilter) ([]model.Registration, int, error)
	Stats(ctx context.Context) (*model.Stats, error)

	GetStaffByEmail(ctx context.Context, email string) (*model.Staff, error)
	UpsertStaff(ctx context.Context, s *model.Staff) error

	Ping(ctx context.Context) error
}
