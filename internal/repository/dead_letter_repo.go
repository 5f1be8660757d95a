package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/notify-engine/internal/domain"
	"gorm.io/gorm"
)

type DeadLetterFilter struct {
	Channel *domain.Channel
	OwnerID string
	Limit   int
}

// DeadLetterRepository is read-only: dead letters are written by GormRetryRepo.MarkFailed.
type DeadLetterRepository interface {
	List(ctx context.Context, filter DeadLetterFilter) ([]domain.DeadLetterRecord, error)
	GetByRetryID(ctx context.Context, retryID string) (*domain.DeadLetterRecord, error)
}

type GormDeadLetterRepo struct {
	db *gorm.DB
}

func NewGormDeadLetterRepo(db *gorm.DB) *GormDeadLetterRepo {
	return &GormDeadLetterRepo{db: db}
}

func (r *GormDeadLetterRepo) List(ctx context.Context, filter DeadLetterFilter) ([]domain.DeadLetterRecord, error) {
	query := r.db.WithContext(ctx).Model(&DeadLetterModel{})
	if filter.Channel != nil {
		query = query.Where("channel = ?", *filter.Channel)
	}
	if filter.OwnerID != "" {
		query = query.Where("owner_id = ?", filter.OwnerID)
	}

	limit := filter.Limit
	if limit < 1 {
		limit = 50
	}
	limit = min(limit, 500)

	var models []DeadLetterModel
	if err := query.Order("failed_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}

	records := make([]domain.DeadLetterRecord, 0, len(models))
	for i := range models {
		records = append(records, *deadLetterModelToDomain(&models[i]))
	}
	return records, nil
}

func (r *GormDeadLetterRepo) GetByRetryID(ctx context.Context, retryID string) (*domain.DeadLetterRecord, error) {
	var model DeadLetterModel
	err := r.db.WithContext(ctx).First(&model, "retry_id = ?", retryID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return deadLetterModelToDomain(&model), nil
}
