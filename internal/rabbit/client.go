package rabbit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wb-go/wbf/zlog"
)

const publishTimeout = 5 * time.Second

type Config struct {
	URL      string
	Exchange string
	Queue    string
	Prefetch int
	// Delayed declares an x-delayed-message exchange. The broker needs the
	// delayed message plugin; without it delays are ignored.
	Delayed bool
}

type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     Config
	mu      sync.Mutex
}

func NewRabbit(cfg Config) (*Client, error) {
	if cfg.URL == "" || cfg.Exchange == "" || cfg.Queue == "" {
		return nil, errors.New("rabbit: url, exchange and queue are required")
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 10
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to connect to RabbitMQ")
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		zlog.Logger.Error().Err(err).Msg("failed to open RabbitMQ channel")
		return nil, err
	}

	client := &Client{
		conn:    conn,
		channel: ch,
		cfg:     cfg,
	}
	if err := client.declare(); err != nil {
		client.Close()
		return nil, err
	}

	zlog.Logger.Info().Bool("delayed", cfg.Delayed).
		Msgf("RabbitMQ initialized (exchange=%s, queue=%s)", cfg.Exchange, cfg.Queue)
	return client, nil
}

func (c *Client) declare() error {
	kind, args := "direct", amqp.Table(nil)
	if c.cfg.Delayed {
		kind, args = "x-delayed-message", amqp.Table{"x-delayed-type": "direct"}
	}
	if err := c.channel.ExchangeDeclare(c.cfg.Exchange, kind, true, false, false, false, args); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to declare exchange")
		return fmt.Errorf("rabbit: declare exchange: %w", err)
	}
	if _, err := c.channel.QueueDeclare(c.cfg.Queue, true, false, false, false, nil); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to declare queue")
		return fmt.Errorf("rabbit: declare queue: %w", err)
	}
	if err := c.channel.QueueBind(c.cfg.Queue, "", c.cfg.Exchange, false, nil); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to bind queue")
		return fmt.Errorf("rabbit: bind queue: %w", err)
	}
	if err := c.channel.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("rabbit: set qos: %w", err)
	}
	return nil
}

func (c *Client) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	zlog.Logger.Info().Msg("RabbitMQ connection closed")
}

// Publish sends a persistent JSON message, held back by delaySeconds when the
// exchange is delayed.
func (c *Client) Publish(message []byte, delaySeconds int) error {
	headers := amqp.Table{}
	if delaySeconds > 0 {
		headers["x-delay"] = int32(delaySeconds * 1000)
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	c.mu.Lock()
	err := c.channel.PublishWithContext(ctx, c.cfg.Exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         message,
		Timestamp:    time.Now(),
		Headers:      headers,
	})
	c.mu.Unlock()

	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to publish message to RabbitMQ")
		return err
	}
	zlog.Logger.Debug().Msgf("Message published to exchange=%s delay=%ds", c.cfg.Exchange, delaySeconds)
	return nil
}

// Consume delivers messages to handler until ctx is done. A handler error
// drops the message; handlers reschedule work themselves.
func (c *Client) Consume(ctx context.Context, handler func(context.Context, []byte) error) error {
	msgs, err := c.channel.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to start consuming messages")
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					zlog.Logger.Warn().Msg("RabbitMQ delivery channel closed")
					return
				}
				if err := handler(ctx, d.Body); err != nil {
					zlog.Logger.Warn().Err(err).Msg("failed to process message, dropping")
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	zlog.Logger.Info().Msgf("Started consuming from queue %s", c.cfg.Queue)
	return nil
}
