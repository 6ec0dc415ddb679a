package consumerWorker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"festpass/internal/apperr"
	"festpass/internal/dto"
	"festpass/internal/metrics"
	"festpass/internal/model"
	"festpass/internal/repo"
)

const MaxAttempts = 5

type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, []byte) error) error
}

// Jobs is the service surface the worker drives. Job outcomes never change
// payment state.
type Jobs interface {
	RegeneratePass(ctx context.Context, id uuid.UUID, force bool) (*dto.PassResponse, error)
	Confirmation(ctx context.Context, id uuid.UUID) (*model.Registration, []model.Event, error)
	Enqueue(kind string, id uuid.UUID, attempt int, delay time.Duration)
	PassRetryDelay() time.Duration
}

type Notifier interface {
	SendConfirmation(ctx context.Context, reg *model.Registration, events []model.Event) error
}

type Reader struct {
	consumer Consumer
	jobs     Jobs
	notifier Notifier
	log      *zerolog.Logger
	metrics  *metrics.Metrics
	done     chan struct{}
	cancel   context.CancelFunc
}

func NewReader(consumer Consumer, jobs Jobs, notifier Notifier, log *zerolog.Logger, m *metrics.Metrics) *Reader {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Reader{
		consumer: consumer,
		jobs:     jobs,
		notifier: notifier,
		log:      log,
		metrics:  m,
		done:     make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) error {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	if err := r.consumer.Consume(cctx, r.Handle); err != nil {
		cancel()
		close(r.done)
		return fmt.Errorf("start consuming: %w", err)
	}
	r.log.Info().Msg("job reader started")

	go func() {
		defer close(r.done)
		<-cctx.Done()
		r.log.Info().Msg("job reader stopped")
	}()
	return nil
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}

// Handle processes one delivery. Transient failures are rescheduled with a
// growing delay up to MaxAttempts; the delivery itself is always settled.
func (r *Reader) Handle(ctx context.Context, body []byte) error {
	var msg dto.RegistrationJobMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		r.log.Error().Err(err).Msgf("failed to unmarshal job: %s", string(body))
		return err
	}
	id, err := uuid.Parse(msg.RegistrationID)
	if err != nil {
		r.log.Error().Str("registration_id", msg.RegistrationID).Msg("job has bad registration id")
		return err
	}
	attempt := max(msg.Attempt, 1)

	log := r.log.With().Str("kind", msg.Kind).Str("registration_id", id.String()).Int("attempt", attempt).Logger()

	switch msg.Kind {
	case dto.JobPassRegenerate:
		err = r.regeneratePass(ctx, id)
	case dto.JobNotifyConfirmed:
		err = r.notifyConfirmed(ctx, id)
	default:
		log.Warn().Msg("unknown job kind, dropping")
		r.metrics.Job(msg.Kind, "unknown")
		return nil
	}

	switch {
	case err == nil:
		log.Info().Msg("job done")
		r.metrics.Job(msg.Kind, "ok")
	case permanent(err):
		log.Warn().Err(err).Msg("job cannot succeed, dropping")
		r.metrics.Job(msg.Kind, "dropped")
	case attempt >= MaxAttempts:
		log.Error().Err(err).Msg("job failed, attempts exhausted")
		r.metrics.Job(msg.Kind, "exhausted")
	default:
		delay := r.jobs.PassRetryDelay() * time.Duration(attempt+1)
		log.Warn().Err(err).Dur("retry_in", delay).Msg("job failed, rescheduling")
		r.metrics.Job(msg.Kind, "retry")
		r.jobs.Enqueue(msg.Kind, id, attempt+1, delay)
	}
	return nil
}

func (r *Reader) regeneratePass(ctx context.Context, id uuid.UUID) error {
	_, err := r.jobs.RegeneratePass(ctx, id, false)
	return err
}

func (r *Reader) notifyConfirmed(ctx context.Context, id uuid.UUID) error {
	if r.notifier == nil {
		return nil
	}
	reg, events, err := r.jobs.Confirmation(ctx, id)
	if err != nil {
		return err
	}
	return r.notifier.SendConfirmation(ctx, reg, events)
}

func permanent(err error) bool {
	return errors.Is(err, repo.ErrNotFound) ||
		errors.Is(err, repo.ErrNotPaid) ||
		apperr.Is(err, apperr.KindNotFound) ||
		apperr.Is(err, apperr.KindValidation)
}
