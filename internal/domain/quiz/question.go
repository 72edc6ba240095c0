package quiz

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Question is one generated item. It is only created by the generation stage's
// save step; export later attaches CanvasItemID.
type Question struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	QuizID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"quiz_id"`
	ModuleID     string         `gorm:"column:module_id;not null;index" json:"module_id"`
	BatchKey     string         `gorm:"column:batch_key;not null;index" json:"batch_key"`
	QuestionType string         `gorm:"column:question_type;not null" json:"question_type"`
	Difficulty   Difficulty     `gorm:"column:difficulty;not null" json:"difficulty"`
	Position     int            `gorm:"column:position;not null;default:0" json:"position"`
	QuestionData datatypes.JSON `gorm:"column:question_data;type:jsonb" json:"question_data"`
	IsApproved   bool           `gorm:"column:is_approved;not null;default:false" json:"is_approved"`
	ApprovedAt   *time.Time     `gorm:"column:approved_at" json:"approved_at,omitempty"`
	CanvasItemID *string        `gorm:"column:canvas_item_id" json:"canvas_item_id,omitempty"`
	CreatedAt    time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Question) TableName() string { return "question" }

func (q *Question) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}
