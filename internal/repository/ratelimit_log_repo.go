package repository

import (
	"context"
	"time"

	"github.com/kursadbilgin/notify-engine/internal/domain"
	"gorm.io/gorm"
)

// GormRateLimitLogRepo is the SQL trailing log behind the rate limiter.
type GormRateLimitLogRepo struct {
	db *gorm.DB
}

func NewGormRateLimitLogRepo(db *gorm.DB) *GormRateLimitLogRepo {
	return &GormRateLimitLogRepo{db: db}
}

func (r *GormRateLimitLogRepo) CountSince(ctx context.Context, identity string, endpoint string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&RateLimitLogModel{}).
		Where("identity = ? AND endpoint = ? AND created_at >= ?", identity, endpoint, since).
		Count(&count).Error
	return count, err
}

func (r *GormRateLimitLogRepo) Append(ctx context.Context, entry domain.RateLimitLogEntry) error {
	model := &RateLimitLogModel{
		ID:        entry.ID,
		Identity:  entry.Identity,
		Endpoint:  entry.Endpoint,
		CreatedAt: entry.CreatedAt,
	}
	return r.db.WithContext(ctx).Create(model).Error
}

// PruneBefore deletes entries older than cutoff. Only storage depends on it.
func (r *GormRateLimitLogRepo) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&RateLimitLogModel{})
	return result.RowsAffected, result.Error
}
