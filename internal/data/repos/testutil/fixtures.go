package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/quizbridge-backend/internal/domain/quiz"
)

// DefaultModules is one canvas module with two batches and one manual module
// with one batch.
func DefaultModules() map[string]quiz.SelectedModule {
	return map[string]quiz.SelectedModule{
		"101": {
			Name:       "Cells",
			SourceType: quiz.SourceCanvas,
			QuestionBatches: []quiz.BatchRequest{
				{QuestionType: "multiple_choice", Count: 5, Difficulty: quiz.DifficultyMedium},
				{QuestionType: "true_false", Count: 3, Difficulty: quiz.DifficultyEasy},
			},
		},
		"manual_1": {
			Name:       "Lecture notes",
			SourceType: quiz.SourceManual,
			Content:    "Mitochondria produce ATP through oxidative phosphorylation.",
			WordCount:  6,
			QuestionBatches: []quiz.BatchRequest{
				{QuestionType: "multiple_choice", Count: 2, Difficulty: quiz.DifficultyHard},
			},
		},
	}
}

type QuizOption func(q *quiz.Quiz)

func WithStatus(status quiz.Status) QuizOption {
	return func(q *quiz.Quiz) { q.Status = status }
}

func WithStageStatus(stage quiz.Stage, status quiz.StageStatus) QuizOption {
	return func(q *quiz.Quiz) {
		switch stage {
		case quiz.StageExtraction:
			q.ContentExtractionStatus = status
		case quiz.StageGeneration:
			q.LLMGenerationStatus = status
		case quiz.StageExport:
			q.ExportStatus = status
		}
	}
}

func WithModules(modules map[string]quiz.SelectedModule) QuizOption {
	return func(q *quiz.Quiz) { q.SelectedModules = MustJSON(nil, modules) }
}

func WithContent(content quiz.ExtractedContent) QuizOption {
	return func(q *quiz.Quiz) {
		q.ExtractedContent = MustJSON(nil, content)
		now := time.Now().UTC()
		q.ContentExtractedAt = &now
	}
}

func WithMetadata(m quiz.GenerationMetadata) QuizOption {
	return func(q *quiz.Quiz) { q.GenerationMetadata = MustJSON(nil, m) }
}

func SeedQuiz(tb testing.TB, ctx context.Context, tx *gorm.DB, opts ...QuizOption) *quiz.Quiz {
	tb.Helper()
	q := &quiz.Quiz{
		ID:               uuid.New(),
		OwnerUserID:      uuid.New(),
		CanvasCourseID:   4242,
		CanvasCourseName: "Biology 101",
		Title:            "Week 3 quiz",
		SelectedModules:  MustJSON(tb, DefaultModules()),
		Status:           quiz.StatusCreated,
		LLMModel:         "gpt-4o",
		LLMTemperature:   1,
		Language:         "en",
		Tone:             "academic",
	}
	for _, opt := range opts {
		opt(q)
	}
	if err := tx.WithContext(ctx).Create(q).Error; err != nil {
		tb.Fatalf("seed quiz: %v", err)
	}
	return q
}

func SeedQuestion(tb testing.TB, ctx context.Context, tx *gorm.DB, quizID uuid.UUID, batchKey string, position int, approved bool) *quiz.Question {
	tb.Helper()
	q := &quiz.Question{
		ID:           uuid.New(),
		QuizID:       quizID,
		ModuleID:     "101",
		BatchKey:     batchKey,
		QuestionType: "true_false",
		Difficulty:   quiz.DifficultyEasy,
		Position:     position,
		QuestionData: datatypes.JSON([]byte(`{"question_text":"Cells have membranes.","correct_answer":true}`)),
		IsApproved:   approved,
	}
	if err := tx.WithContext(ctx).Create(q).Error; err != nil {
		tb.Fatalf("seed question: %v", err)
	}
	return q
}

func MustJSON(tb testing.TB, v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		if tb != nil {
			tb.Fatalf("marshal json: %v", err)
		}
		panic(err)
	}
	return datatypes.JSON(b)
}

func PtrTime(v time.Time) *time.Time { return &v }
