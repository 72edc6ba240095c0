package quiz

import (
	"context"

	types "github.com/yungbote/quizbridge-backend/internal/domain/quiz"
	"github.com/yungbote/quizbridge-backend/internal/modules/quiz/generation"
	"github.com/yungbote/quizbridge-backend/internal/platform/canvas"
)

// ContentExtractor fetches the text of remote (Canvas) modules.
type ContentExtractor interface {
	ExtractContent(ctx context.Context, token string, courseID int64, moduleIDs []string) (types.ExtractedContent, error)
}

type ContentSummarizer interface {
	Summarize(content types.ExtractedContent) types.ContentSummary
}

type SummarizerFunc func(types.ExtractedContent) types.ContentSummary

func (f SummarizerFunc) Summarize(content types.ExtractedContent) types.ContentSummary {
	return f(content)
}

type Generator = generation.Generator

type QuizCreator interface {
	CreateQuiz(ctx context.Context, token string, courseID int64, title string, pointsPossible float64) (string, error)
}

type ItemExporter interface {
	ExportItems(ctx context.Context, token string, courseID int64, quizID string, items []canvas.Item) ([]canvas.ItemResult, error)
}

type QuizDeleter interface {
	DeleteQuiz(ctx context.Context, token string, courseID int64, quizID string) (bool, error)
}

type StatusPublisher interface {
	PublishStatus(ctx context.Context, ev types.StatusEvent) error
}
