package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/lessonforge/internal/domain/generation"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&types.OutlineRequest{},
		&types.StatusRecord{},
		&types.LessonUnit{},
	); err != nil {
		return err
	}
	return EnsureStatusIndexes(db)
}

// EnsureStatusIndexes adds the partial index that allows at most one terminal
// record per entity. Both postgres and sqlite accept the syntax.
func EnsureStatusIndexes(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_status_record_terminal
		ON status_record(entity_id)
		WHERE status IN ('completed', 'failed', 'error');
	`).Error; err != nil {
		return fmt.Errorf("create idx_status_record_terminal: %w", err)
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_status_record_entity_status ON status_record(entity_id, status);`).Error; err != nil {
		return fmt.Errorf("create idx_status_record_entity_status: %w", err)
	}
	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	return nil
}
