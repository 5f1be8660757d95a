package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notify-engine/internal/domain"
	"github.com/kursadbilgin/notify-engine/internal/repository"
)

// InboxService serves the owner-facing in-app read paths and digest preferences.
type InboxService struct {
	notifications repository.NotificationRepository
	preferences   repository.PreferenceRepository
	now           func() time.Time
}

func NewInboxService(
	notifications repository.NotificationRepository,
	preferences repository.PreferenceRepository,
) (*InboxService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if preferences == nil {
		return nil, fmt.Errorf("preference repository is required")
	}

	return &InboxService{
		notifications: notifications,
		preferences:   preferences,
		now:           time.Now,
	}, nil
}

func (s *InboxService) List(ctx context.Context, ownerID string, params repository.InboxParams) ([]domain.NotificationRecord, error) {
	ownerID, err := requireOwner(ownerID)
	if err != nil {
		return nil, err
	}
	return s.notifications.ListForOwner(ctx, ownerID, params)
}

func (s *InboxService) MarkRead(ctx context.Context, ownerID string, id string) error {
	ownerID, err := requireOwner(ownerID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}
	return s.notifications.MarkOneRead(ctx, ownerID, id, s.now().UTC())
}

// GetPreference returns the owner's preference, defaulting to no digest.
func (s *InboxService) GetPreference(ctx context.Context, ownerID string) (*domain.NotificationPreference, error) {
	ownerID, err := requireOwner(ownerID)
	if err != nil {
		return nil, err
	}

	pref, err := s.preferences.Get(ctx, ownerID)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.NotificationPreference{OwnerID: ownerID, DigestFrequency: domain.DigestNone}, nil
	}
	return pref, err
}

func (s *InboxService) SetDigestFrequency(ctx context.Context, ownerID string, frequency domain.DigestFrequency) (*domain.NotificationPreference, error) {
	ownerID, err := requireOwner(ownerID)
	if err != nil {
		return nil, err
	}
	if !frequency.IsValid() {
		return nil, fmt.Errorf("%w: invalid digest frequency %q", domain.ErrValidation, frequency)
	}

	pref := &domain.NotificationPreference{
		OwnerID:         ownerID,
		DigestFrequency: frequency,
		UpdatedAt:       s.now().UTC(),
	}
	if err := s.preferences.Upsert(ctx, pref); err != nil {
		return nil, err
	}
	return pref, nil
}

func requireOwner(ownerID string) (string, error) {
	trimmed := strings.TrimSpace(ownerID)
	if trimmed == "" {
		return "", fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	return trimmed, nil
}
