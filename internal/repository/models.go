package repository

import (
	"encoding/json"
	"time"

	"github.com/kursadbilgin/notify-engine/internal/domain"
)

// RetryRecordModel is the persistence model for the retry_queue table.
type RetryRecordModel struct {
	ID            string             `gorm:"type:uuid;primaryKey"`
	OwnerID       string             `gorm:"type:varchar(255);not null;index"`
	Channel       domain.Channel     `gorm:"type:varchar(10);not null"`
	Snapshot      string             `gorm:"type:jsonb;not null"`
	Status        domain.RetryStatus `gorm:"type:varchar(20);not null"`
	AttemptNumber int                `gorm:"not null;default:0"`
	MaxAttempts   int                `gorm:"not null;default:3"`
	NextRetryAt   time.Time          `gorm:"not null"`
	CreatedAt     time.Time
	CompletedAt   *time.Time
	ErrorMessage  *string    `gorm:"type:text"`
	ClaimToken    *string    `gorm:"type:varchar(36)"`
	ClaimedUntil  *time.Time
}

func (RetryRecordModel) TableName() string {
	return "retry_queue"
}

// DeadLetterModel is the persistence model for the dead_letters table.
type DeadLetterModel struct {
	ID               string         `gorm:"type:uuid;primaryKey"`
	RetryID          string         `gorm:"type:uuid;not null;uniqueIndex"`
	OwnerID          string         `gorm:"type:varchar(255);not null;index"`
	NotificationType string         `gorm:"type:varchar(100);not null"`
	Channel          domain.Channel `gorm:"type:varchar(10);not null;index"`
	Snapshot         string         `gorm:"type:jsonb;not null"`
	ErrorMessage     string         `gorm:"type:text;not null"`
	FailedAt         time.Time      `gorm:"not null"`
}

func (DeadLetterModel) TableName() string {
	return "dead_letters"
}

// NotificationRecordModel is the persistence model for in-app notifications.
type NotificationRecordModel struct {
	ID        string          `gorm:"type:uuid;primaryKey"`
	OwnerID   string          `gorm:"type:varchar(255);not null;index:idx_notifications_owner_unread,priority:1"`
	Type      string          `gorm:"type:varchar(100);not null"`
	Title     string          `gorm:"type:varchar(255);not null;default:''"`
	Message   string          `gorm:"type:text;not null"`
	Metadata  *string         `gorm:"type:jsonb"`
	Priority  domain.Priority `gorm:"type:varchar(10);not null"`
	IsRead    bool            `gorm:"not null;default:false;index:idx_notifications_owner_unread,priority:2"`
	CreatedAt time.Time       `gorm:"index:idx_notifications_owner_unread,priority:3"`
	ReadAt    *time.Time
}

func (NotificationRecordModel) TableName() string {
	return "notifications"
}

// PreferenceModel is the persistence model for notification_preferences.
type PreferenceModel struct {
	OwnerID         string                 `gorm:"type:varchar(255);primaryKey"`
	DigestFrequency domain.DigestFrequency `gorm:"type:varchar(10);not null;default:'none';index"`
	UpdatedAt       time.Time
}

func (PreferenceModel) TableName() string {
	return "notification_preferences"
}

// RateLimitLogModel is the persistence model for the append-only rate_limit_log.
type RateLimitLogModel struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	Identity  string    `gorm:"type:varchar(255);not null;index:idx_rate_limit_log_lookup,priority:1"`
	Endpoint  string    `gorm:"type:varchar(255);not null;index:idx_rate_limit_log_lookup,priority:2"`
	CreatedAt time.Time `gorm:"not null;index:idx_rate_limit_log_lookup,priority:3"`
}

func (RateLimitLogModel) TableName() string {
	return "rate_limit_log"
}

func retryModelFromDomain(r *domain.RetryRecord) *RetryRecordModel {
	if r == nil {
		return nil
	}

	return &RetryRecordModel{
		ID:            r.ID,
		OwnerID:       r.OwnerID,
		Channel:       r.Channel,
		Snapshot:      string(r.Snapshot),
		Status:        r.Status,
		AttemptNumber: r.AttemptNumber,
		MaxAttempts:   r.MaxAttempts,
		NextRetryAt:   r.NextRetryAt,
		CreatedAt:     r.CreatedAt,
		CompletedAt:   r.CompletedAt,
		ErrorMessage:  r.ErrorMessage,
		ClaimToken:    r.ClaimToken,
		ClaimedUntil:  r.ClaimedUntil,
	}
}

func retryModelToDomain(m *RetryRecordModel) *domain.RetryRecord {
	if m == nil {
		return nil
	}

	return &domain.RetryRecord{
		ID:            m.ID,
		OwnerID:       m.OwnerID,
		Channel:       m.Channel,
		Snapshot:      json.RawMessage(m.Snapshot),
		Status:        m.Status,
		AttemptNumber: m.AttemptNumber,
		MaxAttempts:   m.MaxAttempts,
		NextRetryAt:   m.NextRetryAt,
		CreatedAt:     m.CreatedAt,
		CompletedAt:   m.CompletedAt,
		ErrorMessage:  m.ErrorMessage,
		ClaimToken:    m.ClaimToken,
		ClaimedUntil:  m.ClaimedUntil,
	}
}

func deadLetterModelFromDomain(d *domain.DeadLetterRecord) *DeadLetterModel {
	if d == nil {
		return nil
	}

	return &DeadLetterModel{
		ID:               d.ID,
		RetryID:          d.RetryID,
		OwnerID:          d.OwnerID,
		NotificationType: d.NotificationType,
		Channel:          d.Channel,
		Snapshot:         string(d.Snapshot),
		ErrorMessage:     d.ErrorMessage,
		FailedAt:         d.FailedAt,
	}
}

func deadLetterModelToDomain(m *DeadLetterModel) *domain.DeadLetterRecord {
	if m == nil {
		return nil
	}

	return &domain.DeadLetterRecord{
		ID:               m.ID,
		RetryID:          m.RetryID,
		OwnerID:          m.OwnerID,
		NotificationType: m.NotificationType,
		Channel:          m.Channel,
		Snapshot:         json.RawMessage(m.Snapshot),
		ErrorMessage:     m.ErrorMessage,
		FailedAt:         m.FailedAt,
	}
}

func notificationModelFromDomain(n *domain.NotificationRecord) (*NotificationRecordModel, error) {
	if n == nil {
		return nil, nil
	}

	var metadata *string
	if len(n.Metadata) > 0 {
		raw, err := json.Marshal(n.Metadata)
		if err != nil {
			return nil, err
		}
		value := string(raw)
		metadata = &value
	}

	return &NotificationRecordModel{
		ID:        n.ID,
		OwnerID:   n.OwnerID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Metadata:  metadata,
		Priority:  n.Priority,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
		ReadAt:    n.ReadAt,
	}, nil
}

func notificationModelToDomain(m *NotificationRecordModel) *domain.NotificationRecord {
	if m == nil {
		return nil
	}

	var metadata map[string]any
	if m.Metadata != nil && *m.Metadata != "" {
		// Metadata is written by this package only; a decode failure leaves it empty.
		_ = json.Unmarshal([]byte(*m.Metadata), &metadata)
	}

	return &domain.NotificationRecord{
		ID:        m.ID,
		OwnerID:   m.OwnerID,
		Type:      m.Type,
		Title:     m.Title,
		Message:   m.Message,
		Metadata:  metadata,
		Priority:  m.Priority,
		IsRead:    m.IsRead,
		CreatedAt: m.CreatedAt,
		ReadAt:    m.ReadAt,
	}
}

func preferenceModelToDomain(m *PreferenceModel) *domain.NotificationPreference {
	if m == nil {
		return nil
	}

	return &domain.NotificationPreference{
		OwnerID:         m.OwnerID,
		DigestFrequency: m.DigestFrequency,
		UpdatedAt:       m.UpdatedAt,
	}
}
