package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/notify-engine/internal/domain"
	"github.com/kursadbilgin/notify-engine/internal/queue"
)

// DeliveryPublisher hands a delivery to an external gateway queue.
type DeliveryPublisher interface {
	Publish(ctx context.Context, queue string, msg queue.Envelope) error
}

// PushSender hands push notifications to the push gateway over the broker.
// A successful publish counts as a successful send.
type PushSender struct {
	publisher DeliveryPublisher
	queue     string
}

func NewPushSender(publisher DeliveryPublisher) (*PushSender, error) {
	if publisher == nil {
		return nil, fmt.Errorf("delivery publisher is required")
	}
	return &PushSender{publisher: publisher, queue: queue.PushQueue}, nil
}

func (s *PushSender) Send(ctx context.Context, snapshot domain.NotificationSnapshot) error {
	if err := snapshot.ValidateFor(domain.ChannelPush); err != nil {
		return fmt.Errorf("invalid notification: %w", err)
	}
	if strings.TrimSpace(snapshot.NotificationID) == "" {
		return fmt.Errorf("%w: push delivery requires a notification id", domain.ErrValidation)
	}

	msg := queue.DeliveryMessage{
		NotificationID: snapshot.NotificationID,
		Channel:        domain.ChannelPush,
		Snapshot:       snapshot,
	}
	if err := s.publisher.Publish(ctx, s.queue, msg); err != nil {
		return transientError(domain.ChannelPush.String(), "failed to publish push delivery", err)
	}
	return nil
}
