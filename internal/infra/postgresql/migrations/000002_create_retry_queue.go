package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/notify-engine/internal/repository"
	"gorm.io/gorm"
)

func createRetryQueueTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_retry_queue",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.RetryRecordModel{}); err != nil {
				return err
			}
			return execAll(tx,
				`CREATE INDEX IF NOT EXISTS idx_retry_queue_pending_due ON retry_queue (next_retry_at) WHERE status = 'pending'`,
			)
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.RetryRecordModel{})
		},
	}
}
