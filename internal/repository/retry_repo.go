package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/notify-engine/internal/domain"
	"gorm.io/gorm"
)

type RetryRepository interface {
	Enqueue(ctx context.Context, r *domain.RetryRecord) error
	GetByID(ctx context.Context, id string) (*domain.RetryRecord, error)
	GetDue(ctx context.Context, now time.Time, limit int) ([]domain.RetryRecord, error)
	Claim(ctx context.Context, id string, attemptNumber int, token string, now time.Time, until time.Time) (bool, error)
	MarkCompleted(ctx context.Context, id string, token string, completedAt time.Time) error
	Reschedule(ctx context.Context, id string, token string, attemptNumber int, nextRetryAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, id string, token string, attemptNumber int, failedAt time.Time, finalError string, deadLetter *domain.DeadLetterRecord) error
}

type GormRetryRepo struct {
	db *gorm.DB
}

func NewGormRetryRepo(db *gorm.DB) *GormRetryRepo {
	return &GormRetryRepo{db: db}
}

func (r *GormRetryRepo) Enqueue(ctx context.Context, record *domain.RetryRecord) error {
	model := retryModelFromDomain(record)
	if model == nil {
		return domain.ErrValidation
	}
	if model.Status == "" {
		model.Status = domain.RetryStatusPending
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	*record = *retryModelToDomain(model)
	return nil
}

func (r *GormRetryRepo) GetByID(ctx context.Context, id string) (*domain.RetryRecord, error) {
	var model RetryRecordModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return retryModelToDomain(&model), nil
}

// GetDue returns pending, unclaimed records whose next_retry_at has passed, oldest first.
func (r *GormRetryRepo) GetDue(ctx context.Context, now time.Time, limit int) ([]domain.RetryRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	var models []RetryRecordModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at <= ?", domain.RetryStatusPending, now).
		Where("claimed_until IS NULL OR claimed_until <= ?", now).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	records := make([]domain.RetryRecord, 0, len(models))
	for i := range models {
		records = append(records, *retryModelToDomain(&models[i]))
	}
	return records, nil
}

// Claim takes a lease on a due record as it was loaded at attemptNumber. It
// reports false when another pass holds the record, has already moved it to a
// later attempt, or it is no longer pending.
func (r *GormRetryRepo) Claim(ctx context.Context, id string, attemptNumber int, token string, now time.Time, until time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&RetryRecordModel{}).
		Where("id = ? AND status = ? AND attempt_number = ? AND next_retry_at <= ?", id, domain.RetryStatusPending, attemptNumber, now).
		Where("claimed_until IS NULL OR claimed_until <= ?", now).
		Updates(map[string]any{
			"claim_token":   token,
			"claimed_until": until,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *GormRetryRepo) MarkCompleted(ctx context.Context, id string, token string, completedAt time.Time) error {
	result := r.guarded(ctx, id, token).Updates(map[string]any{
		"status":        domain.RetryStatusCompleted,
		"completed_at":  completedAt,
		"claim_token":   nil,
		"claimed_until": nil,
	})
	return guardedResult(result)
}

// Reschedule leaves the record pending with a new attempt number and due time.
func (r *GormRetryRepo) Reschedule(ctx context.Context, id string, token string, attemptNumber int, nextRetryAt time.Time, lastError string) error {
	result := r.guarded(ctx, id, token).Updates(map[string]any{
		"attempt_number": attemptNumber,
		"next_retry_at":  nextRetryAt,
		"error_message":  lastError,
		"claim_token":    nil,
		"claimed_until":  nil,
	})
	return guardedResult(result)
}

// MarkFailed moves the record to failed and writes its dead letter in one transaction.
func (r *GormRetryRepo) MarkFailed(
	ctx context.Context,
	id string,
	token string,
	attemptNumber int,
	failedAt time.Time,
	finalError string,
	deadLetter *domain.DeadLetterRecord,
) error {
	dlModel := deadLetterModelFromDomain(deadLetter)
	if dlModel == nil {
		return domain.ErrValidation
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&RetryRecordModel{}).
			Where("id = ? AND status = ? AND claim_token = ?", id, domain.RetryStatusPending, token).
			Updates(map[string]any{
				"status":         domain.RetryStatusFailed,
				"attempt_number": attemptNumber,
				"completed_at":   failedAt,
				"error_message":  finalError,
				"claim_token":    nil,
				"claimed_until":  nil,
			})
		if err := guardedResult(result); err != nil {
			return err
		}
		return tx.Create(dlModel).Error
	})
}

func (r *GormRetryRepo) guarded(ctx context.Context, id string, token string) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&RetryRecordModel{}).
		Where("id = ? AND status = ? AND claim_token = ?", id, domain.RetryStatusPending, token)
}

func guardedResult(result *gorm.DB) error {
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}
