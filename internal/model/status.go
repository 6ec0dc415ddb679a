package model

import "fmt"

// PaymentStatus is the payment state of a registration.
//
//	PENDING -> PAID | FAILED
//	PAID    -> REFUNDED (out of band)
type PaymentStatus string

const (
	StatusPending  PaymentStatus = "PENDING"
	StatusPaid     PaymentStatus = "PAID"
	StatusFailed   PaymentStatus = "FAILED"
	StatusRefunded PaymentStatus = "REFUNDED"
)

var transitions = map[PaymentStatus][]PaymentStatus{
	StatusPending: {StatusPaid, StatusFailed},
	StatusPaid:    {StatusRefunded},
}

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	st := PaymentStatus(s)
	if !st.IsValid() {
		return "", fmt.Errorf("unknown payment status %q", s)
	}
	return st, nil
}

func (s PaymentStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusFailed, StatusRefunded:
		return true
	}
	return false
}

func (s PaymentStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

func (s PaymentStatus) CanTransitionTo(to PaymentStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition is a checked status change. Stores apply it as a conditional
// update guarded by From, so a row that moved on in the meantime is untouched.
type Transition struct {
	From PaymentStatus
	To   PaymentStatus
}

func NewTransition(from, to PaymentStatus) (Transition, error) {
	if !from.CanTransitionTo(to) {
		return Transition{}, fmt.Errorf("illegal payment status transition %s -> %s", from, to)
	}
	return Transition{From: from, To: to}, nil
}

// MustTransition is for transitions fixed at compile time.
func MustTransition(from, to PaymentStatus) Transition {
	t, err := NewTransition(from, to)
	if err != nil {
		panic(err)
	}
	return t
}

var (
	MarkPaid     = MustTransition(StatusPending, StatusPaid)
	MarkFailed   = MustTransition(StatusPending, StatusFailed)
	MarkRefunded = MustTransition(StatusPaid, StatusRefunded)
)
