package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kursadbilgin/notify-engine/internal/backoff"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// settlement is what happens to a delivery once its intent was handled.
type settlement int

const (
	settleAck settlement = iota
	settleRequeue
	settleDeadLetter
)

// RabbitMQConsumer consumes intents with manual acknowledgements. It does not
// own the connection; closing the RabbitMQ client stops it.
type RabbitMQConsumer struct {
	client   *RabbitMQ
	prefetch int
	logger   *zap.Logger
}

func NewRabbitMQConsumer(client *RabbitMQ, prefetch int, logger *zap.Logger) *RabbitMQConsumer {
	if prefetch < 1 {
		prefetch = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RabbitMQConsumer{
		client:   client,
		prefetch: prefetch,
		logger:   logger,
	}
}

// Consume blocks until ctx is done, resubscribing with backoff whenever the
// channel or connection drops.
func (c *RabbitMQConsumer) Consume(ctx context.Context, queue string, handler IntentHandler) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("consumer is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if handler == nil {
		return fmt.Errorf("intent handler is required")
	}

	failures := 0
	for {
		err := c.subscribe(ctx, queue, handler)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			failures = 0
			continue
		}

		wait := backoff.ComputeDelay(failures, reconnectBackoff)
		c.logger.Warn("intent subscription lost, resubscribing",
			zap.String("queue", queue),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		failures++

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (c *RabbitMQConsumer) subscribe(ctx context.Context, queue string, handler IntentHandler) error {
	ch, err := c.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume queue %q: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			if err := c.handleDelivery(ctx, d, handler); err != nil {
				return err
			}
		}
	}
}

func (c *RabbitMQConsumer) handleDelivery(ctx context.Context, d amqp.Delivery, handler IntentHandler) error {
	switch c.settle(ctx, d, handler) {
	case settleDeadLetter:
		if err := d.Reject(false); err != nil {
			return fmt.Errorf("failed to reject delivery: %w", err)
		}
	case settleRequeue:
		if err := d.Nack(false, true); err != nil {
			return fmt.Errorf("failed to requeue delivery: %w", err)
		}
	default:
		if err := d.Ack(false); err != nil {
			return fmt.Errorf("failed to ack delivery: %w", err)
		}
	}
	return nil
}

// settle runs the handler and decides the fate of the delivery. Malformed
// intents and intents failing a second time are dead-lettered.
func (c *RabbitMQConsumer) settle(ctx context.Context, d amqp.Delivery, handler IntentHandler) settlement {
	var msg IntentMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.logger.Warn("dead-lettering intent: invalid JSON", zap.String("messageId", d.MessageId), zap.Error(err))
		return settleDeadLetter
	}
	if err := msg.Validate(); err != nil {
		c.logger.Warn("dead-lettering intent: validation failed",
			zap.String("notificationId", msg.NotificationID),
			zap.String("userId", msg.UserID),
			zap.Error(err),
		)
		return settleDeadLetter
	}

	if err := handler(ctx, msg); err != nil {
		if d.Redelivered {
			c.logger.Warn("dead-lettering intent after redelivery failure", zap.String("userId", msg.UserID), zap.Error(err))
			return settleDeadLetter
		}
		c.logger.Debug("requeueing intent", zap.String("userId", msg.UserID), zap.Error(err))
		return settleRequeue
	}
	return settleAck
}
