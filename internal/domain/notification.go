package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Channel represents the delivery channel.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelInApp, ChannelEmail, ChannelSMS, ChannelPush:
		return true
	}
	return false
}

func ParseChannelFromString(s string) (Channel, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	ch := Channel(normalized)
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// ParseChannelList parses a comma separated channel list, dropping duplicates.
func ParseChannelList(s string) ([]Channel, error) {
	seen := make(map[Channel]struct{})
	channels := make([]Channel, 0, 4)
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		ch, err := ParseChannelFromString(part)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[ch]; ok {
			continue
		}
		seen[ch] = struct{}{}
		channels = append(channels, ch)
	}
	return channels, nil
}

// Priority represents the notification priority level.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) String() string { return string(p) }

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Digestible reports whether notifications of this priority are batched into digests.
// High and urgent notifications are delivered on their own.
func (p Priority) Digestible() bool {
	return p == PriorityLow || p == PriorityNormal
}

func ParsePriorityFromString(s string) (Priority, error) {
	pr := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !pr.IsValid() {
		return "", fmt.Errorf("%w: invalid priority %q", ErrValidation, s)
	}
	return pr, nil
}

// Message limits per channel (in characters).
const (
	MaxSMSContent   = 160
	MaxPushContent  = 240
	MaxEmailContent = 10000
	MaxInAppContent = 2000
)

// NotificationType is used for digest summaries produced by the digest aggregator.
const NotificationTypeDigest = "digest"

// NotificationSnapshot is the immutable payload captured when a delivery is scheduled.
// Channel senders receive exactly this value on every attempt.
type NotificationSnapshot struct {
	NotificationID string         `json:"notificationId,omitempty"`
	OwnerID        string         `json:"ownerId"`
	Type           string         `json:"type"`
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Priority       Priority       `json:"priority"`
	Recipient      string         `json:"recipient,omitempty"`
}

func (s NotificationSnapshot) Validate() error {
	if strings.TrimSpace(s.OwnerID) == "" {
		return fmt.Errorf("%w: owner id is required", ErrValidation)
	}
	if strings.TrimSpace(s.Type) == "" {
		return fmt.Errorf("%w: type is required", ErrValidation)
	}
	if strings.TrimSpace(s.Message) == "" {
		return fmt.Errorf("%w: message is required", ErrValidation)
	}
	if !s.Priority.IsValid() {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, s.Priority)
	}
	return nil
}

// ValidateFor checks the snapshot against the limits of a delivery channel.
func (s NotificationSnapshot) ValidateFor(channel Channel) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if !channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, channel)
	}

	contentLen := len([]rune(s.Message))
	switch channel {
	case ChannelSMS:
		if contentLen > MaxSMSContent {
			return fmt.Errorf("%w: SMS message exceeds %d characters (got %d)", ErrValidation, MaxSMSContent, contentLen)
		}
	case ChannelPush:
		if contentLen > MaxPushContent {
			return fmt.Errorf("%w: push message exceeds %d characters (got %d)", ErrValidation, MaxPushContent, contentLen)
		}
	case ChannelEmail:
		if contentLen > MaxEmailContent {
			return fmt.Errorf("%w: email message exceeds %d characters (got %d)", ErrValidation, MaxEmailContent, contentLen)
		}
	case ChannelInApp:
		if contentLen > MaxInAppContent {
			return fmt.Errorf("%w: in-app message exceeds %d characters (got %d)", ErrValidation, MaxInAppContent, contentLen)
		}
	}

	return nil
}

func (s NotificationSnapshot) Encode() (json.RawMessage, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification snapshot: %w", err)
	}
	return raw, nil
}

func DecodeSnapshot(raw json.RawMessage) (NotificationSnapshot, error) {
	var snapshot NotificationSnapshot
	if len(raw) == 0 {
		return snapshot, fmt.Errorf("%w: empty notification snapshot", ErrValidation)
	}
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return snapshot, fmt.Errorf("%w: malformed notification snapshot: %v", ErrValidation, err)
	}
	return snapshot, nil
}

// NotificationRecord is an in-app notification shown to its owner.
type NotificationRecord struct {
	ID        string
	OwnerID   string
	Type      string
	Title     string
	Message   string
	Metadata  map[string]any
	Priority  Priority
	IsRead    bool
	CreatedAt time.Time
	ReadAt    *time.Time
}

// NotificationRecordFromSnapshot builds the in-app record for a delivered snapshot.
func NotificationRecordFromSnapshot(s NotificationSnapshot, createdAt time.Time) NotificationRecord {
	return NotificationRecord{
		ID:        s.NotificationID,
		OwnerID:   s.OwnerID,
		Type:      s.Type,
		Title:     s.Title,
		Message:   s.Message,
		Metadata:  s.Metadata,
		Priority:  s.Priority,
		CreatedAt: createdAt,
	}
}
