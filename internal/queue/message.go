package queue

import (
	"fmt"
	"strings"

	"github.com/kursadbilgin/notify-engine/internal/domain"
)

// IntentMessage is a producer's request to notify a user on one or more channels.
type IntentMessage struct {
	NotificationID string          `json:"notificationId,omitempty"`
	CorrelationID  string          `json:"correlationId,omitempty"`
	UserID         string          `json:"userId"`
	Type           string          `json:"type"`
	Title          string          `json:"title"`
	Message        string          `json:"message"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
	Priority       domain.Priority `json:"priority"`
	Channels       []string        `json:"channels"`
	Recipient      string          `json:"recipient,omitempty"`
	Deferred       bool            `json:"deferred,omitempty"`
}

func (m IntentMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("userId is required")
	}
	if strings.TrimSpace(m.Type) == "" {
		return fmt.Errorf("type is required")
	}
	if len(m.Channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}
	for _, ch := range m.Channels {
		if _, err := domain.ParseChannelFromString(ch); err != nil {
			return err
		}
	}
	if m.Priority != "" && !m.Priority.IsValid() {
		return fmt.Errorf("invalid priority %q", m.Priority)
	}
	return nil
}

func (m IntentMessage) Headers() (string, string, domain.Priority) {
	return m.NotificationID, m.CorrelationID, m.Priority
}

// DeliveryMessage carries one snapshot to an external channel gateway.
type DeliveryMessage struct {
	NotificationID string                      `json:"notificationId"`
	CorrelationID  string                      `json:"correlationId,omitempty"`
	Channel        domain.Channel              `json:"channel"`
	Snapshot       domain.NotificationSnapshot `json:"snapshot"`
}

func (m DeliveryMessage) Validate() error {
	if strings.TrimSpace(m.NotificationID) == "" {
		return fmt.Errorf("notificationId is required")
	}
	if !m.Channel.IsValid() {
		return fmt.Errorf("invalid channel %q", m.Channel)
	}
	return m.Snapshot.ValidateFor(m.Channel)
}

func (m DeliveryMessage) Headers() (string, string, domain.Priority) {
	return m.NotificationID, m.CorrelationID, m.Snapshot.Priority
}
