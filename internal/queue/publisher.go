package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// RabbitMQPublisher writes persistent JSON messages to the default exchange,
// routed by queue name.
type RabbitMQPublisher struct {
	client *RabbitMQ
	now    func() time.Time
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client, now: time.Now}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, queue string, msg Envelope) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	publishing, err := p.publishing(queue, msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	ch, err := p.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck

	if err := ch.PublishWithContext(ctx, "", queue, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish message to queue %q: %w", queue, err)
	}
	return nil
}

func (p *RabbitMQPublisher) publishing(queue string, msg Envelope) (amqp.Publishing, error) {
	if queue == "" {
		return amqp.Publishing{}, fmt.Errorf("queue name is required")
	}
	if msg == nil {
		return amqp.Publishing{}, fmt.Errorf("message is required")
	}
	if err := msg.Validate(); err != nil {
		return amqp.Publishing{}, fmt.Errorf("invalid message: %w", err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal message: %w", err)
	}
	messageID, correlationID, priority := msg.Headers()

	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     p.now().UTC(),
		MessageId:     messageID,
		CorrelationId: correlationID,
		Priority:      PriorityValue(priority),
		Body:          body,
	}, nil
}
