package consumers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"payment-service/config"
	"payment-service/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Deliverer interface {
	Deliver(ctx context.Context, ev models.NotificationEvent) error
}

// StartNotificationConsumer delivers queued notifications until the channel
// closes. Failed deliveries are rejected into the dead-letter queue.
func StartNotificationConsumer(ctx context.Context, ch *amqp.Channel, cfg *config.Config, d Deliverer) error {
	msgs, err := ch.Consume(
		cfg.NotifyQueue,
		"payment-service", // consumer tag
		false,             // auto-ack
		false,             // exclusive
		false,             // no-local
		false,             // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("register notification consumer: %w", err)
	}

	go func() {
		for msg := range msgs {
			processNotificationMessage(ctx, msg, d)
		}
	}()

	dlqMsgs, err := ch.Consume(
		cfg.DeadLetterQueue,
		"payment-service-dlq", // consumer tag
		false,                 // auto-ack
		false,                 // exclusive
		false,                 // no-local
		false,                 // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("register dead-letter consumer: %w", err)
	}

	go func() {
		for msg := range dlqMsgs {
			processDeadLetterMessage(msg)
		}
	}()
	return nil
}

func processNotificationMessage(ctx context.Context, msg amqp.Delivery, d Deliverer) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("recovered from panic in notification delivery", "message_id", msg.MessageId, "panic", r)
			_ = msg.Nack(false, false)
		}
	}()

	var ev models.NotificationEvent
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		slog.Error("invalid notification message", "message_id", msg.MessageId, "error", err)
		_ = msg.Nack(false, false)
		return
	}

	if err := d.Deliver(ctx, ev); err != nil {
		slog.Error("notification delivery failed",
			"message_id", msg.MessageId, "kind", ev.Kind, "order_id", ev.OrderID, "error", err)
		_ = msg.Nack(false, false)
		return
	}

	_ = msg.Ack(false)
}

func processDeadLetterMessage(msg amqp.Delivery) {
	slog.Warn("dead-lettered notification", "message_id", msg.MessageId, "body", string(msg.Body))
	_ = msg.Ack(false)
}
