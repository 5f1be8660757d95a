package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/notify-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InboxParams struct {
	UnreadOnly bool
	Limit      int
}

type NotificationRepository interface {
	// Create inserts n unless a record with the same id exists. It reports whether a row was written.
	Create(ctx context.Context, n *domain.NotificationRecord) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.NotificationRecord, error)
	ListForOwner(ctx context.Context, ownerID string, params InboxParams) ([]domain.NotificationRecord, error)
	ListDigestCandidates(ctx context.Context, ownerID string, since time.Time, until time.Time) ([]domain.NotificationRecord, error)
	MarkRead(ctx context.Context, ids []string, readAt time.Time) (int64, error)
	MarkOneRead(ctx context.Context, ownerID string, id string, readAt time.Time) error
}

type GormNotificationRepo struct {
	db *gorm.DB
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db}
}

func (r *GormNotificationRepo) Create(ctx context.Context, n *domain.NotificationRecord) (bool, error) {
	model, err := notificationModelFromDomain(n)
	if err != nil {
		return false, err
	}
	if model == nil {
		return false, domain.ErrValidation
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(model)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	*n = *notificationModelToDomain(model)
	return true, nil
}

func (r *GormNotificationRepo) GetByID(ctx context.Context, id string) (*domain.NotificationRecord, error) {
	var model NotificationRecordModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model), nil
}

func (r *GormNotificationRepo) ListForOwner(ctx context.Context, ownerID string, params InboxParams) ([]domain.NotificationRecord, error) {
	query := r.db.WithContext(ctx).
		Model(&NotificationRecordModel{}).
		Where("owner_id = ?", ownerID)
	if params.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}

	limit := params.Limit
	if limit < 1 {
		limit = 50
	}
	limit = min(limit, 200)

	var models []NotificationRecordModel
	if err := query.Order("created_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	return notificationsToDomain(models), nil
}

// ListDigestCandidates returns the owner's unread low and normal priority
// notifications created in [since, until].
func (r *GormNotificationRepo) ListDigestCandidates(ctx context.Context, ownerID string, since time.Time, until time.Time) ([]domain.NotificationRecord, error) {
	var models []NotificationRecordModel
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND is_read = ?", ownerID, false).
		Where("priority IN ?", []domain.Priority{domain.PriorityLow, domain.PriorityNormal}).
		Where("created_at >= ? AND created_at <= ?", since, until).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return notificationsToDomain(models), nil
}

// MarkRead marks every still-unread notification in ids as read.
func (r *GormNotificationRepo) MarkRead(ctx context.Context, ids []string, readAt time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).
		Model(&NotificationRecordModel{}).
		Where("id IN ? AND is_read = ?", ids, false).
		Updates(map[string]any{
			"is_read": true,
			"read_at": readAt,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GormNotificationRepo) MarkOneRead(ctx context.Context, ownerID string, id string, readAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationRecordModel{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Updates(map[string]any{
			"is_read": true,
			"read_at": gorm.Expr("COALESCE(read_at, ?)", readAt),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func notificationsToDomain(models []NotificationRecordModel) []domain.NotificationRecord {
	records := make([]domain.NotificationRecord, 0, len(models))
	for i := range models {
		records = append(records, *notificationModelToDomain(&models[i]))
	}
	return records
}
