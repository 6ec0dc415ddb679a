//go:build integration

package rabbit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

func TestPublishConsumeRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	container, err := tcrabbitmq.Run(ctx, "rabbitmq:3.13-management-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.AmqpURL(ctx)
	require.NoError(t, err)

	client, err := NewRabbit(Config{URL: url, Exchange: "festpass.jobs", Queue: "festpass.jobs.q"})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	got := make(chan string, 1)
	consumeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	require.NoError(t, client.Consume(consumeCtx, func(_ context.Context, body []byte) error {
		got <- string(body)
		return nil
	}))

	require.NoError(t, client.Publish([]byte(`{"kind":"notify.confirmed"}`), 0))

	select {
	case body := <-got:
		require.JSONEq(t, `{"kind":"notify.confirmed"}`, body)
	case <-time.After(10 * time.Second):
		t.Fatal("message not delivered")
	}
}
