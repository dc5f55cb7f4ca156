package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrPoison marks a message that can never be processed; it is dropped instead of requeued
var ErrPoison = errors.New("poison message")

// EventHandler processes one raw event body
type EventHandler interface {
	HandleEvent(ctx context.Context, body []byte) error
}

// AuditConsumer drains the audit queue into an EventHandler
type AuditConsumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	handler EventHandler
	logger  *slog.Logger
	retry   time.Duration
}

func NewAuditConsumer(url string, handler EventHandler, logger *slog.Logger) (*AuditConsumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	// Prefetch 1 keeps history inserts in delivery order
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	return &AuditConsumer{
		conn:    conn,
		channel: ch,
		handler: handler,
		logger:  logger,
		retry:   5 * time.Second,
	}, nil
}

// Listen declares the topology and consumes until ctx ends or the channel closes
func (c *AuditConsumer) Listen(ctx context.Context) error {
	if err := declareExchange(c.channel); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	q, err := declareAuditQueue(c.channel)
	if err != nil {
		return err
	}

	msgs, err := c.channel.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer is online and waiting for messages", "queue", q.Name, "routing_key", AuditBinding)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			c.dispatch(ctx, d)
		}
	}
}

func (c *AuditConsumer) dispatch(ctx context.Context, d amqp.Delivery) {
	err := c.handler.HandleEvent(ctx, d.Body)
	switch {
	case err == nil:
		if err := d.Ack(false); err != nil {
			c.logger.Error("Failed to Ack message", "message_id", d.MessageId, "error", err)
		}
	case errors.Is(err, ErrPoison):
		c.logger.Error("Dropping unprocessable message", "message_id", d.MessageId, "error", err)
		_ = d.Nack(false, false)
	default:
		c.logger.Error("Processing failed, requeueing", "message_id", d.MessageId, "error", err)
		select {
		case <-time.After(c.retry):
		case <-ctx.Done():
		}
		_ = d.Nack(false, true)
	}
}

// Close gracefully terminates RabbitMQ resources
func (c *AuditConsumer) Close() {
	c.logger.Info("Shutting down RabbitMQ consumer")
	c.channel.Close()
	c.conn.Close()
}
