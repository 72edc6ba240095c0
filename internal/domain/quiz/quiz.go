package quiz

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Quiz is the long-lived work item the orchestration engine drives from
// CREATED to PUBLISHED (or FAILED).
type Quiz struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerUserID      uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	CanvasCourseID   int64     `gorm:"column:canvas_course_id;not null;index" json:"canvas_course_id"`
	CanvasCourseName string    `gorm:"column:canvas_course_name" json:"canvas_course_name"`
	Title            string    `gorm:"column:title;not null" json:"title"`

	SelectedModules datatypes.JSON `gorm:"column:selected_modules;type:jsonb" json:"selected_modules"`

	Status        Status         `gorm:"column:status;not null;index" json:"status"`
	FailureReason *FailureReason `gorm:"column:failure_reason" json:"failure_reason,omitempty"`

	ContentExtractionStatus StageStatus `gorm:"column:content_extraction_status;not null" json:"content_extraction_status"`
	LLMGenerationStatus     StageStatus `gorm:"column:llm_generation_status;not null" json:"llm_generation_status"`
	ExportStatus            StageStatus `gorm:"column:export_status;not null" json:"export_status"`

	ExtractedContent   datatypes.JSON `gorm:"column:extracted_content;type:jsonb" json:"extracted_content,omitempty"`
	ContentExtractedAt *time.Time     `gorm:"column:content_extracted_at" json:"content_extracted_at,omitempty"`
	GenerationMetadata datatypes.JSON `gorm:"column:generation_metadata;type:jsonb" json:"generation_metadata"`

	LLMModel       string  `gorm:"column:llm_model" json:"llm_model"`
	LLMTemperature float64 `gorm:"column:llm_temperature" json:"llm_temperature"`
	Language       string  `gorm:"column:language" json:"language"`
	Tone           string  `gorm:"column:tone" json:"tone"`

	CanvasQuizID *string    `gorm:"column:canvas_quiz_id" json:"canvas_quiz_id,omitempty"`
	ExportedAt   *time.Time `gorm:"column:exported_at" json:"exported_at,omitempty"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Quiz) TableName() string { return "quiz" }

func (q *Quiz) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	if q.Status == "" {
		q.Status = StatusCreated
	}
	for _, s := range []*StageStatus{&q.ContentExtractionStatus, &q.LLMGenerationStatus, &q.ExportStatus} {
		if *s == "" {
			*s = StagePending
		}
	}
	if len(q.GenerationMetadata) == 0 {
		q.GenerationMetadata = datatypes.JSON([]byte(`{"successful_batches":[],"failed_batches":[]}`))
	}
	return nil
}

// StageStatus returns the progress flag for a stage.
func (q *Quiz) StageStatus(stage Stage) StageStatus {
	switch stage {
	case StageExtraction:
		return q.ContentExtractionStatus
	case StageGeneration:
		return q.LLMGenerationStatus
	case StageExport:
		return q.ExportStatus
	default:
		return ""
	}
}

// ActiveStage resolves the stage a failure belongs to. Extraction chains into
// generation under one task, so a task scheduled as extraction can fail after
// its own flag completed; the stage still processing owns that failure.
func (q *Quiz) ActiveStage(stage Stage) Stage {
	if q.StageStatus(stage) != StageCompleted {
		return stage
	}
	for _, s := range []Stage{StageExtraction, StageGeneration, StageExport} {
		if q.StageStatus(s) == StageProcessing {
			return s
		}
	}
	return stage
}

func (q *Quiz) Modules() (map[string]SelectedModule, error) {
	out := map[string]SelectedModule{}
	if len(q.SelectedModules) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(q.SelectedModules, &out); err != nil {
		return nil, fmt.Errorf("decode selected_modules: %w", err)
	}
	return out, nil
}

func (q *Quiz) Content() (ExtractedContent, error) {
	out := ExtractedContent{}
	if len(q.ExtractedContent) == 0 || string(q.ExtractedContent) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(q.ExtractedContent, &out); err != nil {
		return nil, fmt.Errorf("decode extracted_content: %w", err)
	}
	return out, nil
}

func (q *Quiz) Metadata() (GenerationMetadata, error) {
	var out GenerationMetadata
	if len(q.GenerationMetadata) == 0 || string(q.GenerationMetadata) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(q.GenerationMetadata, &out); err != nil {
		return out, fmt.Errorf("decode generation_metadata: %w", err)
	}
	return out, nil
}

// ExpectedBatchKeys lists every batch key configured on the quiz, sorted.
func ExpectedBatchKeys(modules map[string]SelectedModule) []string {
	var keys []string
	for moduleID, m := range modules {
		for _, b := range m.QuestionBatches {
			keys = append(keys, BatchKey(moduleID, b.QuestionType, b.Difficulty))
		}
	}
	sort.Strings(keys)
	return keys
}

// ValidateSelectedModules rejects empty selections, non-positive counts and
// duplicate (question type, difficulty) pairs within a module.
func ValidateSelectedModules(modules map[string]SelectedModule, knownType func(string) bool) error {
	if len(modules) == 0 {
		return fmt.Errorf("at least one module must be selected")
	}
	for moduleID, m := range modules {
		if moduleID == "" {
			return fmt.Errorf("module id required")
		}
		if m.SourceType != SourceCanvas && m.SourceType != SourceManual {
			return fmt.Errorf("module %s: unknown source type %q", moduleID, m.SourceType)
		}
		if m.SourceType == SourceManual && m.Content == "" {
			return fmt.Errorf("module %s: manual module requires content", moduleID)
		}
		if len(m.QuestionBatches) == 0 {
			return fmt.Errorf("module %s: at least one question batch required", moduleID)
		}
		seen := map[string]bool{}
		for _, b := range m.QuestionBatches {
			if knownType != nil && !knownType(b.QuestionType) {
				return fmt.Errorf("module %s: unknown question type %q", moduleID, b.QuestionType)
			}
			if !b.Difficulty.Valid() {
				return fmt.Errorf("module %s: invalid difficulty %q", moduleID, b.Difficulty)
			}
			if b.Count < 1 || b.Count > 20 {
				return fmt.Errorf("module %s: batch count must be between 1 and 20", moduleID)
			}
			pair := b.QuestionType + "|" + string(b.Difficulty)
			if seen[pair] {
				return fmt.Errorf("module %s: duplicate batch for %s/%s", moduleID, b.QuestionType, b.Difficulty)
			}
			seen[pair] = true
		}
	}
	return nil
}
