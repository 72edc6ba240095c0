package quiz

import (
	"context"
	"time"

	"github.com/yungbote/quizbridge-backend/internal/data/repos"
	domainagg "github.com/yungbote/quizbridge-backend/internal/domain/aggregates"
	types "github.com/yungbote/quizbridge-backend/internal/domain/quiz"
	"github.com/yungbote/quizbridge-backend/internal/modules/quiz/generation"
	"github.com/yungbote/quizbridge-backend/internal/modules/quiz/questiontypes"
	"github.com/yungbote/quizbridge-backend/internal/observability"
	"github.com/yungbote/quizbridge-backend/internal/platform/logger"
)

type Timeouts struct {
	Extraction time.Duration
	Generation time.Duration
	Export     time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Extraction: 5 * time.Minute,
		Generation: 15 * time.Minute,
		Export:     5 * time.Minute,
	}
}

type StagesDeps struct {
	Log       *logger.Logger
	Lifecycle domainagg.QuizLifecycleAggregate
	Questions repos.QuestionRepo
	Registry  *questiontypes.Registry

	Extractor  ContentExtractor
	Summarizer ContentSummarizer
	Generator  Generator
	Creator    QuizCreator
	Exporter   ItemExporter
	Deleter    QuizDeleter
	// Publisher is optional.
	Publisher StatusPublisher

	Limits      generation.Limits
	Concurrency int
	Timeouts    Timeouts
}

// Stages runs the extraction, generation and export stages. Every stage
// reserves through the lifecycle aggregate, does its network I/O with no
// transaction open, then records the result in a second short transaction.
type Stages struct {
	deps StagesDeps
	log  *logger.Logger
}

func NewStages(deps StagesDeps) *Stages {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Summarizer == nil {
		deps.Summarizer = SummarizerFunc(types.Summarize)
	}
	if deps.Registry == nil {
		deps.Registry = questiontypes.Default()
	}
	if deps.Concurrency <= 0 {
		deps.Concurrency = 4
	}
	return &Stages{deps: deps, log: deps.Log.With("component", "QuizStages")}
}

func (s *Stages) publish(ctx context.Context, q *types.Quiz, stage types.Stage, status types.Status, reason *types.FailureReason) {
	if s.deps.Publisher == nil || q == nil {
		return
	}
	ev := types.StatusEvent{
		QuizID:        q.ID,
		OwnerUserID:   q.OwnerUserID,
		Stage:         stage,
		Status:        status,
		FailureReason: reason,
		At:            time.Now().UTC(),
	}
	if err := s.deps.Publisher.PublishStatus(ctx, ev); err != nil {
		s.log.Warn("status publish failed", "quiz_id", q.ID, "status", status, "error", err)
	}
}

// fail records a terminal stage failure and reports it as a Fail outcome.
func (s *Stages) fail(ctx context.Context, q *types.Quiz, stage types.Stage, reason types.FailureReason, cause error) (Outcome, error) {
	res, err := s.deps.Lifecycle.FailStage(ctx, domainagg.FailStageInput{
		QuizID: q.ID,
		Stage:  stage,
		Reason: reason,
		Cause:  cause.Error(),
	})
	if err != nil {
		return Outcome{}, err
	}
	if res.Applied {
		s.publish(ctx, q, stage, types.StatusFailed, &reason)
	}
	return failOutcome(stage, reason, cause), nil
}

func (s *Stages) observe(stage types.Stage, out Outcome, err error, start time.Time) {
	label := string(out.Kind)
	if err != nil {
		label = "error"
	}
	observability.Current().ObserveStage(string(stage), label, time.Since(start))
}
