package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notify-engine/internal/domain"
)

// NotificationStore is the slice of the notification repository the in-app sender needs.
type NotificationStore interface {
	Create(ctx context.Context, n *domain.NotificationRecord) (bool, error)
}

// InAppSender stores the notification in the owner's inbox. Writes are keyed
// by the snapshot's notification id, so a retried send never duplicates a row.
type InAppSender struct {
	store NotificationStore
	now   func() time.Time
}

func NewInAppSender(store NotificationStore) (*InAppSender, error) {
	if store == nil {
		return nil, fmt.Errorf("notification store is required")
	}
	return &InAppSender{store: store, now: time.Now}, nil
}

func (s *InAppSender) Send(ctx context.Context, snapshot domain.NotificationSnapshot) error {
	if err := snapshot.ValidateFor(domain.ChannelInApp); err != nil {
		return fmt.Errorf("invalid notification: %w", err)
	}
	if strings.TrimSpace(snapshot.NotificationID) == "" {
		return fmt.Errorf("%w: in-app delivery requires a notification id", domain.ErrValidation)
	}

	record := domain.NotificationRecordFromSnapshot(snapshot, s.now().UTC())
	if _, err := s.store.Create(ctx, &record); err != nil {
		return transientError(domain.ChannelInApp.String(), "failed to store in-app notification", err)
	}
	return nil
}
