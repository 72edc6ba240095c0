package db

import (
	"fmt"

	"github.com/yungbote/quizbridge-backend/internal/domain/quiz"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&quiz.Quiz{},
		&quiz.Question{},
	)
}

// EnsureQuizIndexes creates the partial indexes AutoMigrate cannot express.
// Both postgres and sqlite accept the statements.
func EnsureQuizIndexes(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_question_batch_position
		ON question(quiz_id, batch_key, position)
		WHERE deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_question_batch_position: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_question_quiz_approved
		ON question(quiz_id, is_approved)
		WHERE deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_question_quiz_approved: %w", err)
	}
	return nil
}

func Migrate(db *gorm.DB) error {
	if err := AutoMigrateAll(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return EnsureQuizIndexes(db)
}
