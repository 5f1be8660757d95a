package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/notify-engine/internal/repository"
	"gorm.io/gorm"
)

func createRateLimitLogTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000005_create_rate_limit_log",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.RateLimitLogModel{}); err != nil {
				return err
			}
			// Pruning scans by age alone.
			return execAll(tx,
				`CREATE INDEX IF NOT EXISTS idx_rate_limit_log_created_at ON rate_limit_log (created_at)`,
			)
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.RateLimitLogModel{})
		},
	}
}
