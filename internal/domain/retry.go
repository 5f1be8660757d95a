package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RetryStatus represents the lifecycle state of a retry record.
type RetryStatus string

const (
	RetryStatusPending   RetryStatus = "pending"
	RetryStatusCompleted RetryStatus = "completed"
	RetryStatusFailed    RetryStatus = "failed"
)

func (s RetryStatus) String() string { return string(s) }

func (s RetryStatus) IsValid() bool {
	switch s {
	case RetryStatusPending, RetryStatusCompleted, RetryStatusFailed:
		return true
	}
	return false
}

const (
	DefaultMaxAttempts = 3
	MaxAllowedAttempts = 20
)

// RetryRecord tracks the delivery of one notification on one channel.
type RetryRecord struct {
	ID            string
	OwnerID       string
	Channel       Channel
	Snapshot      json.RawMessage
	Status        RetryStatus
	AttemptNumber int
	MaxAttempts   int
	NextRetryAt   time.Time
	CreatedAt     time.Time
	CompletedAt   *time.Time
	ErrorMessage  *string
	ClaimToken    *string
	ClaimedUntil  *time.Time
}

func (r *RetryRecord) Validate() error {
	if strings.TrimSpace(r.OwnerID) == "" {
		return fmt.Errorf("%w: owner id is required", ErrValidation)
	}
	if !r.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, r.Channel)
	}
	if len(r.Snapshot) == 0 {
		return fmt.Errorf("%w: notification snapshot is required", ErrValidation)
	}
	if r.MaxAttempts < 1 || r.MaxAttempts > MaxAllowedAttempts {
		return fmt.Errorf("%w: max attempts must be between 1 and %d", ErrValidation, MaxAllowedAttempts)
	}
	if r.AttemptNumber < 0 || r.AttemptNumber > r.MaxAttempts {
		return fmt.Errorf("%w: attempt number %d out of range", ErrValidation, r.AttemptNumber)
	}
	return nil
}

// FinalAttempt reports whether a failure of the current attempt exhausts the budget.
func (r *RetryRecord) FinalAttempt() bool {
	return r.AttemptNumber+1 >= r.MaxAttempts
}

// DeadLetterRecord is the inert copy of a delivery that exhausted its retries.
type DeadLetterRecord struct {
	ID               string
	RetryID          string
	OwnerID          string
	NotificationType string
	Channel          Channel
	Snapshot         json.RawMessage
	ErrorMessage     string
	FailedAt         time.Time
}
