package consumerWorker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"festpass/internal/apperr"
	"festpass/internal/dto"
	"festpass/internal/model"
	"festpass/internal/repo"
)

type enqueued struct {
	kind    string
	id      uuid.UUID
	attempt int
	delay   time.Duration
}

type fakeJobs struct {
	passErr    error
	confirmErr error
	passCalls  int
	queue      []enqueued
}

func (f *fakeJobs) RegeneratePass(ctx context.Context, id uuid.UUID, force bool) (*dto.PassResponse, error) {
	f.passCalls++
	if f.passErr != nil {
		return nil, f.passErr
	}
	return &dto.PassResponse{TicketID: "MNT-TECH-1", QRCode: "data:"}, nil
}

func (f *fakeJobs) Confirmation(ctx context.Context, id uuid.UUID) (*model.Registration, []model.Event, error) {
	if f.confirmErr != nil {
		return nil, nil, f.confirmErr
	}
	return &model.Registration{ID: id, TicketID: "MNT-TECH-1", Email: "a@b.c"}, nil, nil
}

func (f *fakeJobs) Enqueue(kind string, id uuid.UUID, attempt int, delay time.Duration) {
	f.queue = append(f.queue, enqueued{kind, id, attempt, delay})
}

func (f *fakeJobs) PassRetryDelay() time.Duration { return 10 * time.Second }

type fakeNotifier struct {
	sent int
	err  error
}

func (n *fakeNotifier) SendConfirmation(context.Context, *model.Registration, []model.Event) error {
	if n.err != nil {
		return n.err
	}
	n.sent++
	return nil
}

type fakeConsumer struct {
	handler func(context.Context, []byte) error
}

func (c *fakeConsumer) Consume(ctx context.Context, h func(context.Context, []byte) error) error {
	c.handler = h
	return nil
}

func job(t *testing.T, kind string, id uuid.UUID, attempt int) []byte {
	t.Helper()
	b, err := json.Marshal(dto.RegistrationJobMessage{Kind: kind, RegistrationID: id.String(), Attempt: attempt})
	require.NoError(t, err)
	return b
}

func TestHandlePassRegenerate(t *testing.T) {
	jobs := &fakeJobs{}
	r := NewReader(&fakeConsumer{}, jobs, nil, nil, nil)
	id := uuid.New()

	require.NoError(t, r.Handle(context.Background(), job(t, dto.JobPassRegenerate, id, 1)))
	assert.Equal(t, 1, jobs.passCalls)
	assert.Empty(t, jobs.queue)
}

func TestHandleRetriesWithGrowingDelay(t *testing.T) {
	jobs := &fakeJobs{passErr: errors.New("db hiccup")}
	r := NewReader(&fakeConsumer{}, jobs, nil, nil, nil)
	id := uuid.New()

	require.NoError(t, r.Handle(context.Background(), job(t, dto.JobPassRegenerate, id, 2)))
	require.Len(t, jobs.queue, 1)
	assert.Equal(t, enqueued{dto.JobPassRegenerate, id, 3, 30 * time.Second}, jobs.queue[0])

	require.NoError(t, r.Handle(context.Background(), job(t, dto.JobPassRegenerate, id, MaxAttempts)))
	assert.Len(t, jobs.queue, 1)
}

func TestHandleDropsPermanentFailures(t *testing.T) {
	jobs := &fakeJobs{passErr: apperr.NotFound("Registration not found"), confirmErr: repo.ErrNotPaid}
	r := NewReader(&fakeConsumer{}, jobs, &fakeNotifier{}, nil, nil)

	require.NoError(t, r.Handle(context.Background(), job(t, dto.JobPassRegenerate, uuid.New(), 1)))
	require.NoError(t, r.Handle(context.Background(), job(t, dto.JobNotifyConfirmed, uuid.New(), 1)))
	assert.Empty(t, jobs.queue)
}

func TestHandleNotifyConfirmed(t *testing.T) {
	jobs := &fakeJobs{}
	n := &fakeNotifier{}
	r := NewReader(&fakeConsumer{}, jobs, n, nil, nil)

	require.NoError(t, r.Handle(context.Background(), job(t, dto.JobNotifyConfirmed, uuid.New(), 0)))
	assert.Equal(t, 1, n.sent)

	n.err = errors.New("smtp down")
	require.NoError(t, r.Handle(context.Background(), job(t, dto.JobNotifyConfirmed, uuid.New(), 1)))
	require.Len(t, jobs.queue, 1)
	assert.Equal(t, dto.JobNotifyConfirmed, jobs.queue[0].kind)
}

func TestHandleRejectsGarbage(t *testing.T) {
	r := NewReader(&fakeConsumer{}, &fakeJobs{}, nil, nil, nil)
	assert.Error(t, r.Handle(context.Background(), []byte("{")))
	assert.Error(t, r.Handle(context.Background(), []byte(`{"kind":"pass.regenerate","registration_id":"nope"}`)))
	assert.NoError(t, r.Handle(context.Background(), job(t, "something.else", uuid.New(), 1)))
}

func TestStartStop(t *testing.T) {
	c := &fakeConsumer{}
	r := NewReader(c, &fakeJobs{}, nil, nil, nil)
	require.NoError(t, r.Start(context.Background()))
	require.NotNil(t, c.handler)
	r.Stop()
}
