package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/notify-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PreferenceRepository interface {
	Upsert(ctx context.Context, p *domain.NotificationPreference) error
	Get(ctx context.Context, ownerID string) (*domain.NotificationPreference, error)
	ListOwnersByFrequency(ctx context.Context, frequency domain.DigestFrequency) ([]string, error)
}

type GormPreferenceRepo struct {
	db *gorm.DB
}

func NewGormPreferenceRepo(db *gorm.DB) *GormPreferenceRepo {
	return &GormPreferenceRepo{db: db}
}

func (r *GormPreferenceRepo) Upsert(ctx context.Context, p *domain.NotificationPreference) error {
	if p == nil {
		return domain.ErrValidation
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}

	model := &PreferenceModel{
		OwnerID:         p.OwnerID,
		DigestFrequency: p.DigestFrequency,
		UpdatedAt:       p.UpdatedAt,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"digest_frequency", "updated_at"}),
		}).
		Create(model).Error
}

func (r *GormPreferenceRepo) Get(ctx context.Context, ownerID string) (*domain.NotificationPreference, error) {
	var model PreferenceModel
	err := r.db.WithContext(ctx).First(&model, "owner_id = ?", ownerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return preferenceModelToDomain(&model), nil
}

func (r *GormPreferenceRepo) ListOwnersByFrequency(ctx context.Context, frequency domain.DigestFrequency) ([]string, error) {
	var owners []string
	err := r.db.WithContext(ctx).
		Model(&PreferenceModel{}).
		Where("digest_frequency = ?", frequency).
		Order("owner_id ASC").
		Pluck("owner_id", &owners).Error
	if err != nil {
		return nil, err
	}
	return owners, nil
}
