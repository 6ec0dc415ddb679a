package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"festpass/internal/apperr"
	"festpass/internal/dto"
	"festpass/internal/metrics"
	"festpass/internal/model"
	"festpass/internal/payment"
	"festpass/internal/pricing"
	"festpass/internal/repo"
	"festpass/pkg/ticket"
	"festpass/pkg/validator"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200

	DefaultPassRetryDelay = 30 * time.Second

	ticketIDAttempts = 3
)

// Publisher is the job queue. rabbit.Client satisfies it.
type Publisher interface {
	Publish(message []byte, delaySeconds int) error
}

type PassEncoder interface {
	Encode(ticketID string) (string, error)
}

type Service struct {
	repo    repo.Repository
	gateway payment.Gateway
	signer  *payment.Signer
	passes  PassEncoder
	log     *zerolog.Logger

	pub            Publisher
	metrics        *metrics.Metrics
	now            func() time.Time
	currency       string
	keyID          string
	passRetryDelay time.Duration
	newTicketID    func(category string, now time.Time) string
}

type Option func(*Service)

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.pub = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithCurrency(currency string) Option {
	return func(s *Service) {
		if currency != "" {
			s.currency = currency
		}
	}
}

// WithKeyID sets the public gateway key returned to the checkout widget.
func WithKeyID(keyID string) Option {
	return func(s *Service) { s.keyID = keyID }
}

func WithPassRetryDelay(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.passRetryDelay = d
		}
	}
}

// WithTicketGenerator replaces ticket.NewID.
func WithTicketGenerator(gen func(category string, now time.Time) string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newTicketID = gen
		}
	}
}

func NewService(repository repo.Repository, gateway payment.Gateway, signer *payment.Signer, passes PassEncoder, logger *zerolog.Logger, opts ...Option) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &Service{
		repo:           repository,
		gateway:        gateway,
		signer:         signer,
		passes:         passes,
		log:            logger,
		now:            time.Now,
		currency:       payment.CurrencyINR,
		passRetryDelay: DefaultPassRetryDelay,
		newTicketID:    ticket.NewID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) PassRetryDelay() time.Duration { return s.passRetryDelay }

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Service) ListEvents(ctx context.Context) ([]dto.EventResponse, error) {
	events, err := s.repo.ListActiveEvents(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "failed to list events")
	}
	resp := make([]dto.EventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, dto.NewEventResponse(e))
	}
	return resp, nil
}

// CreateOrder prices the selection against a fresh catalog read, opens a
// gateway order for exactly that total and persists a PENDING registration.
// Nothing is written when pricing or the gateway fails. The PENDING row holds
// no seats; they are taken when the payment is verified.
func (s *Service) CreateOrder(ctx context.Context, req dto.CreateOrderRequest) (*dto.CreateOrderResponse, error) {
	req = normalizeOrderRequest(req)
	if verr := validator.Validate(ctx, req); verr != nil {
		return nil, apperr.New(apperr.KindValidation, verr.Error())
	}
	sel, err := selectionFromRequest(req)
	if err != nil {
		return nil, err
	}

	catalog, err := s.repo.GetActiveEventsByIDs(ctx, sel.EventIDs)
	if err != nil {
		return nil, apperr.Upstream(err, "Unable to load events, please try again")
	}
	now := s.now()
	quote, err := pricing.Compute(catalog, sel, now)
	if err != nil {
		return nil, err
	}

	ticketID, err := s.freshTicketID(ctx, quote.PrimaryCategory(), now)
	if err != nil {
		return nil, err
	}
	email := req.Email
	order, err := s.gateway.CreateOrder(ctx, quote.Total, s.currency, ticketID, map[string]string{
		"ticket_id": ticketID,
		"email":     email,
	})
	if err != nil {
		s.log.Error().Err(err).Str("ticket_id", ticketID).Msg("payment gateway order creation failed")
		return nil, apperr.Upstream(err, "Payment service is unavailable, please try again")
	}
	if order.Amount != 0 && order.Amount != quote.Total {
		s.log.Error().Str("order_id", order.ID).Int64("gateway_amount", order.Amount).
			Int64("total", quote.Total).Msg("gateway order amount differs from computed total")
		return nil, apperr.Upstream(errors.New("gateway amount mismatch"), "Payment service is unavailable, please try again")
	}

	reg := &model.Registration{
		TicketID:    ticketID,
		Name:        ticket.Sanitize(req.Name),
		Email:       email,
		Phone:       req.Phone,
		College:     ticket.Sanitize(req.College),
		Year:        ticket.Sanitize(req.Year),
		Department:  ticket.Sanitize(req.Department),
		EventIDs:    sel.EventIDs,
		Teams:       sel.Teams,
		TotalAmount: quote.Total,
		OrderID:     order.ID,
	}
	if err := s.repo.CreatePendingRegistration(ctx, reg); err != nil {
		if errors.Is(err, repo.ErrDuplicateTicket) {
			s.log.Error().Str("order_id", order.ID).Str("ticket_id", ticketID).
				Msg("ticket id collision after gateway order, registration not saved")
			return nil, apperr.Upstream(err, "Registration could not be saved, please contact support").
				WithDetail("order_id", order.ID)
		}
		s.log.Error().Err(err).Str("order_id", order.ID).Str("ticket_id", ticketID).
			Msg("failed to persist registration after gateway order")
		return nil, apperr.Upstream(err, "Registration could not be saved, please contact support").
			WithDetail("order_id", order.ID)
	}

	s.metrics.OrderCreated(quote.Total)
	s.log.Info().Str("ticket_id", ticketID).Str("order_id", order.ID).
		Int64("total", quote.Total).Int("events", len(quote.Lines)).Msg("order created")

	return &dto.CreateOrderResponse{
		Order: dto.OrderInfo{
			ID:       order.ID,
			Amount:   quote.Total,
			Currency: s.currency,
		},
		TicketID: ticketID,
		KeyID:    s.keyID,
		Lines:    quote.Lines,
	}, nil
}

// normalizeOrderRequest trims the contact fields and lowercases the email so
// pasted input with stray spaces passes validation.
func normalizeOrderRequest(req dto.CreateOrderRequest) dto.CreateOrderRequest {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)
	req.College = strings.TrimSpace(req.College)
	req.Year = strings.TrimSpace(req.Year)
	req.Department = strings.TrimSpace(req.Department)
	return req
}

// freshTicketID draws ticket ids until one is not taken. It runs before the
// gateway order so a collision never strands a captured payment.
func (s *Service) freshTicketID(ctx context.Context, category string, now time.Time) (string, error) {
	for attempt := 1; attempt <= ticketIDAttempts; attempt++ {
		id := s.newTicketID(category, now)
		_, err := s.repo.GetRegistrationByTicketID(ctx, id)
		if errors.Is(err, repo.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", apperr.Upstream(err, "Unable to create registration, please try again")
		}
		s.log.Warn().Str("ticket_id", id).Int("attempt", attempt).Msg("ticket id collision, drawing another")
	}
	return "", apperr.Upstream(errors.New("no free ticket id"), "Unable to create registration, please try again")
}

func selectionFromRequest(req dto.CreateOrderRequest) (pricing.Selection, error) {
	sel := pricing.Selection{EventIDs: make([]uuid.UUID, 0, len(req.EventIDs))}
	for _, raw := range req.EventIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return sel, apperr.Validation("Invalid event id %q", raw)
		}
		sel.EventIDs = append(sel.EventIDs, id)
	}
	for _, t := range req.TeamRegistrations {
		id, err := uuid.Parse(t.EventID)
		if err != nil {
			return sel, apperr.Validation("Invalid event id %q", t.EventID)
		}
		members := make([]string, 0, len(t.Members))
		for _, m := range t.Members {
			members = append(members, ticket.Sanitize(m.Name))
		}
		sel.Teams = append(sel.Teams, model.TeamRegistration{
			EventID:  id,
			TeamName: ticket.Sanitize(t.TeamName),
			TeamSize: t.TeamSize,
			Members:  members,
		})
	}
	return sel, nil
}

// VerifyPayment authenticates the gateway callback and moves the registration
// PENDING -> PAID at most once. The entry pass is attached best effort.
func (s *Service) VerifyPayment(ctx context.Context, req dto.VerifyPaymentRequest) (*dto.VerifyPaymentResponse, error) {
	if verr := validator.Validate(ctx, req); verr != nil {
		return nil, apperr.New(apperr.KindValidation, verr.Error())
	}

	if !s.signer.Verify(req.OrderID, req.PaymentID, req.Signature) {
		n, err := s.repo.MarkFailed(ctx, req.OrderID)
		if err != nil {
			s.log.Error().Err(err).Str("order_id", req.OrderID).Msg("failed to mark registration failed")
		}
		s.metrics.PaymentVerification("signature_mismatch")
		s.log.Warn().Str("order_id", req.OrderID).Int("failed_rows", n).Msg("payment signature mismatch")
		return nil, apperr.New(apperr.KindAuthenticity, "Payment verification failed")
	}

	alreadyProcessed := apperr.Conflict("ALREADY_PROCESSED", "Registration not found or already processed")

	reg, err := s.repo.GetPendingByOrderID(ctx, req.OrderID)
	if errors.Is(err, repo.ErrNotFound) {
		s.metrics.PaymentVerification("already_processed")
		return nil, alreadyProcessed
	}
	if err != nil {
		return nil, apperr.Upstream(err, "Unable to verify payment, please try again")
	}

	paid, err := s.repo.MarkPaid(ctx, reg.ID, req.PaymentID, req.Signature)
	switch {
	case errors.Is(err, repo.ErrStaleState):
		s.metrics.PaymentVerification("already_processed")
		return nil, alreadyProcessed
	case errors.Is(err, repo.ErrOversold):
		// the money is captured, so the visitor keeps the registration
		s.metrics.PaymentVerification("over_capacity")
		s.log.Error().Err(err).Str("ticket_id", paid.TicketID).Str("order_id", paid.OrderID).
			Msg("paid registration pushed an event over capacity")
	case err != nil:
		return nil, apperr.Upstream(err, "Unable to verify payment, please try again")
	default:
		s.metrics.PaymentVerification("paid")
	}

	s.log.Info().Str("ticket_id", paid.TicketID).Str("order_id", paid.OrderID).
		Str("payment_id", paid.PaymentID).Msg("payment verified")

	if _, err := s.attachPass(ctx, paid); err != nil {
		s.metrics.PassFailed()
		s.log.Warn().Err(err).Str("ticket_id", paid.TicketID).Msg("entry pass not stored, scheduling regeneration")
		s.Enqueue(dto.JobPassRegenerate, paid.ID, 1, s.passRetryDelay)
	}
	s.Enqueue(dto.JobNotifyConfirmed, paid.ID, 1, 0)

	return &dto.VerifyPaymentResponse{
		Success:  true,
		TicketID: paid.TicketID,
		Message:  "Payment verified successfully",
	}, nil
}

func (s *Service) attachPass(ctx context.Context, reg *model.Registration) (string, error) {
	asset, err := s.passes.Encode(reg.TicketID)
	if err != nil {
		return "", err
	}
	if err := s.repo.SetPassAsset(ctx, reg.ID, asset); err != nil {
		return "", err
	}
	return asset, nil
}

// RegeneratePass rebuilds the pass of a PAID registration. Without force an
// existing pass is kept.
func (s *Service) RegeneratePass(ctx context.Context, id uuid.UUID, force bool) (*dto.PassResponse, error) {
	reg, err := s.repo.GetRegistrationByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, apperr.NotFound("Registration not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "failed to load registration")
	}
	if reg.PaymentStatus != model.StatusPaid {
		return nil, errPaymentNotVerified()
	}
	if reg.PassAsset != "" && !force {
		return &dto.PassResponse{TicketID: reg.TicketID, QRCode: reg.PassAsset}, nil
	}

	asset, err := s.attachPass(ctx, reg)
	if errors.Is(err, repo.ErrNotPaid) {
		return nil, errPaymentNotVerified()
	}
	if err != nil {
		s.metrics.PassFailed()
		return nil, apperr.Wrap(apperr.KindInternal, err, "failed to generate pass")
	}
	s.log.Info().Str("ticket_id", reg.TicketID).Bool("forced", force).Msg("entry pass generated")
	return &dto.PassResponse{TicketID: reg.TicketID, QRCode: asset}, nil
}

// Enqueue publishes a registration job. Without a queue the job is dropped;
// passes can still be regenerated from the admin surface.
func (s *Service) Enqueue(kind string, id uuid.UUID, attempt int, delay time.Duration) {
	if s.pub == nil {
		s.log.Warn().Str("kind", kind).Str("registration_id", id.String()).Msg("no job queue configured, job dropped")
		return
	}
	payload, err := json.Marshal(dto.RegistrationJobMessage{
		Kind:           kind,
		RegistrationID: id.String(),
		Attempt:        attempt,
		EnqueuedAt:     s.now().UTC(),
	})
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal job message")
		return
	}
	if err := s.pub.Publish(payload, int(delay/time.Second)); err != nil {
		s.log.Error().Err(err).Str("kind", kind).Str("registration_id", id.String()).Msg("failed to publish job")
	}
}

func (s *Service) GetPublicRegistration(ctx context.Context, ticketID string) (*dto.RegistrationLookupResponse, error) {
	reg, err := s.repo.GetRegistrationByTicketID(ctx, strings.TrimSpace(ticketID))
	if errors.Is(err, repo.ErrNotFound) || (err == nil && reg.PaymentStatus != model.StatusPaid) {
		return nil, apperr.NotFound("Registration not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "failed to load registration")
	}

	events, err := s.repo.GetEventsByIDs(ctx, reg.EventIDs)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "failed to load events")
	}
	return &dto.RegistrationLookupResponse{
		Registration: *reg,
		Events:       summarize(events),
	}, nil
}

// Confirmation loads what the confirmation email needs.
func (s *Service) Confirmation(ctx context.Context, id uuid.UUID) (*model.Registration, []model.Event, error) {
	reg, err := s.repo.GetRegistrationByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if reg.PaymentStatus != model.StatusPaid {
		return nil, nil, repo.ErrNotPaid
	}
	events, err := s.repo.GetEventsByIDs(ctx, reg.EventIDs)
	if err != nil {
		return nil, nil, err
	}
	return reg, events, nil
}

func summarize(events []model.Event) []dto.EventSummary {
	out := make([]dto.EventSummary, 0, len(events))
	for _, e := range events {
		out = append(out, dto.EventSummary{
			ID:        e.ID.String(),
			Name:      e.Name,
			Category:  e.Category,
			EventDate: e.EventDate,
			Venue:     e.Venue,
		})
	}
	return out
}

func errPaymentNotVerified() *apperr.Error {
	return apperr.New(apperr.KindValidation, "Payment not verified").WithCode("PAYMENT_NOT_VERIFIED")
}

// CheckIn admits a PAID registration exactly once.
func (s *Service) CheckIn(ctx context.Context, id, staffID uuid.UUID) (*dto.CheckInResponse, error) {
	reg, err := s.repo.CheckIn(ctx, id, staffID, s.now().UTC())
	switch {
	case err == nil:
		s.metrics.CheckIn("admitted")
		s.log.Info().Str("ticket_id", reg.TicketID).Str("staff_id", staffID.String()).Msg("checked in")
		return &dto.CheckInResponse{
			Success:     true,
			Message:     "Check-in successful",
			TicketID:    reg.TicketID,
			CheckedInAt: *reg.CheckedInAt,
		}, nil
	case errors.Is(err, repo.ErrNotFound):
		s.metrics.CheckIn("not_found")
		return nil, apperr.NotFound("Registration not found")
	case errors.Is(err, repo.ErrNotPaid):
		s.metrics.CheckIn("not_paid")
		return nil, errPaymentNotVerified()
	case errors.Is(err, repo.ErrAlreadyCheckedIn):
		s.metrics.CheckIn("duplicate")
		e := apperr.Conflict("ALREADY_CHECKED_IN", "Already checked in")
		if reg != nil && reg.CheckedInAt != nil {
			e = e.WithDetail("checked_in_at", reg.CheckedInAt.UTC().Format(time.RFC3339))
		}
		return nil, e
	case errors.Is(err, repo.ErrStaleState):
		return nil, apperr.Conflict("CONFLICT", "Registration changed during check-in, please retry")
	default:
		return nil, apperr.Wrap(apperr.KindInternal, err, "failed to check in")
	}
}

// CheckInByTicket resolves a scanned ticket id and runs the same gate.
func (s *Service) CheckInByTicket(ctx context.Context, ticketID string, staffID uuid.UUID) (*dto.CheckInResponse, error) {
	reg, err := s.repo.GetRegistrationByTicketID(ctx, strings.TrimSpace(ticketID))
	if errors.Is(err, repo.ErrNotFound) {
		s.metrics.CheckIn("not_found")
		return nil, apperr.NotFound("Registration not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "failed to load registration")
	}
	return s.CheckIn(ctx, reg.ID, staffID)
}

func (s *Service) ListRegistrations(ctx context.Context, q dto.RegistrationListQuery) (*dto.RegistrationListResponse, error) {
	if verr := validator.Validate(ctx, q); verr != nil {
		return nil, apperr.New(apperr.KindValidation, verr.Error())
	}
	f, err := filterFromQuery(q)
	if err != nil {
		return nil, err
	}

	regs, total, err := s.repo.ListRegistrations(ctx, f)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "failed to list registrations")
	}
	return &dto.RegistrationListResponse{
		Registrations: regs,
		Total:         total,
		Page:          f.Page,
		Limit:         f.Limit,
	}, nil
}

func filterFromQuery(q dto.RegistrationListQuery) (model.RegistrationFilter, error) {
	f := model.RegistrationFilter{
		Search: strings.TrimSpace(q.Search),
		Page:   max(q.Page, 1),
		Limit:  q.Limit,
	}
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultPageLimit
	case f.Limit > MaxPageLimit:
		f.Limit = MaxPageLimit
	}
	if q.Status != "" {
		st, err := model.ParsePaymentStatus(strings.ToUpper(q.Status))
		if err != nil {
			return f, apperr.Validation("Unknown payment status %q", q.Status)
		}
		f.Status = st
	}
	if q.EventID != "" {
		id, err := uuid.Parse(q.EventID)
		if err != nil {
			return f, apperr.Validation("Invalid event id %q", q.EventID)
		}
		f.EventID = &id
	}
	if q.Date != "" {
		d, err := time.Parse(time.DateOnly, q.Date)
		if err != nil {
			return f, apperr.Validation("Date must be YYYY-MM-DD")
		}
		f.Date = &d
	}
	return f, nil
}

func (s *Service) Stats(ctx context.Context) (*model.Stats, error) {
	st, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "failed to compute stats")
	}
	return st, nil
}
