package quiz

import (
	domainagg "github.com/yungbote/quizbridge-backend/internal/domain/aggregates"
	types "github.com/yungbote/quizbridge-backend/internal/domain/quiz"
	"github.com/yungbote/quizbridge-backend/internal/modules/quiz/generation"
)

type OutcomeKind string

const (
	OutcomeOK   OutcomeKind = "ok"
	OutcomeSkip OutcomeKind = "skip"
	OutcomeFail OutcomeKind = "fail"
)

// Outcome is what a stage did. A Fail has already been persisted as the quiz's
// terminal status; the error return of a stage is kept for what it could not record.
type Outcome struct {
	Kind       OutcomeKind
	Stage      types.Stage
	Status     types.Status
	SkipReason domainagg.SkipReason
	Reason     *types.FailureReason
	Err        error

	Summary      *types.ContentSummary
	Batches      []generation.BatchOutcome
	CanvasQuizID string

	// Next is the auto-triggered generation run after a successful extraction.
	Next    *Outcome
	NextErr error
}

func okOutcome(stage types.Stage, status types.Status) Outcome {
	return Outcome{Kind: OutcomeOK, Stage: stage, Status: status}
}

func skipOutcome(stage types.Stage, res domainagg.ReserveStageResult) Outcome {
	return Outcome{Kind: OutcomeSkip, Stage: stage, Status: res.Snapshot.Status, SkipReason: res.SkipReason}
}

func failOutcome(stage types.Stage, reason types.FailureReason, cause error) Outcome {
	return Outcome{Kind: OutcomeFail, Stage: stage, Status: types.StatusFailed, Reason: &reason, Err: cause}
}
