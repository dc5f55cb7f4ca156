package broker

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Guizzs26/gcm-presence/internal/models"
)

const (
	// Exchange receives every presence event, routed by presence.<region>.<type>
	Exchange = "gcm.presence.topic"
	// AuditQueue feeds the auditor with all events
	AuditQueue   = "gcm.presence.audit"
	AuditBinding = "presence.#"
)

// RoutingKey is presence.<region>.<type>; events without a region (daily resets) use "all"
func RoutingKey(ev models.PresenceEvent) string {
	region := ev.RegionID
	if region == "" {
		region = "all"
	}
	return fmt.Sprintf("presence.%s.%s", region, ev.Type)
}

func declareExchange(ch *amqp.Channel) error {
	return ch.ExchangeDeclare(
		Exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

func declareAuditQueue(ch *amqp.Channel) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(AuditQueue, true, false, false, false, nil)
	if err != nil {
		return q, fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, AuditBinding, Exchange, false, nil); err != nil {
		return q, fmt.Errorf("failed to bind queue: %w", err)
	}
	return q, nil
}

// SetupTopology declares the exchange and the audit queue on a throwaway connection
func SetupTopology(amqpURL string) error {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}
	defer ch.Close()

	if err := declareExchange(ch); err != nil {
		return fmt.Errorf("failed to declare topic exchange: %w", err)
	}
	_, err = declareAuditQueue(ch)
	return err
}
