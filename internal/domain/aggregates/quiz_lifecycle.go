package aggregates

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/quizbridge-backend/internal/domain/quiz"
)

var QuizLifecycleAggregateContract = Contract{
	Name:             "Quiz.LifecycleAggregate",
	WriteTxOwnership: WriteTxOwnedByAggregate,
	ReadPolicy:       ReadPolicyInvariantScoped,
	NetworkIOInTx:    false,
	Notes:            "Owns stage reservation, status transitions and batch/export persistence for a quiz.",
}

// QuizLifecycleAggregate owns the quiz status machine and the per-stage
// reservation flags.
//
// Write method failures return *aggregates.Error with codes:
// CodeValidation, CodeNotFound, CodeInvariantViolation, CodeRetryable, CodeInternal.
// A reservation that finds the stage busy or finished is not an error.
type QuizLifecycleAggregate interface {
	Aggregate

	// ReserveStage locks the quiz row and flips the stage flag to processing.
	ReserveStage(ctx context.Context, in ReserveStageInput) (ReserveStageResult, error)

	// TransitionStatus moves the quiz along the lifecycle table and merges Fields in the same write.
	TransitionStatus(ctx context.Context, in TransitionStatusInput) (TransitionStatusResult, error)

	// SaveBatch replaces every question of one batch key with Items, in acceptance order.
	SaveBatch(ctx context.Context, in SaveBatchInput) (SaveBatchResult, error)

	// RecordGeneration merges batch outcomes into generation metadata and derives the next status.
	RecordGeneration(ctx context.Context, in RecordGenerationInput) (RecordGenerationResult, error)

	// RecordExport persists the remote container id and every item id, then publishes the quiz.
	RecordExport(ctx context.Context, in RecordExportInput) (TransitionStatusResult, error)

	// FailStage is the terminal-failure write used by stages and the background backstop.
	// It is a no-op on quizzes that are already terminal.
	FailStage(ctx context.Context, in FailStageInput) (FailStageResult, error)
}

type SkipReason string

const (
	SkipNone            SkipReason = ""
	SkipInProgress      SkipReason = "in_progress"
	SkipCompleted       SkipReason = "completed"
	SkipStatusNotReady  SkipReason = "status_not_ready"
	SkipTerminal        SkipReason = "terminal"
	SkipAlreadyExported SkipReason = "already_exported"
	SkipStageBusy       SkipReason = "stage_busy"
)

type ReserveStageInput struct {
	QuizID uuid.UUID
	Stage  quiz.Stage
	// RequireStatus lists the lifecycle statuses the stage may start from.
	RequireStatus []quiz.Status
	// RequireCompleted lists stages that must have finished before this one starts.
	RequireCompleted []quiz.Stage
	// RequireIdle lists stages that must not be processing while this one starts.
	RequireIdle []quiz.Stage
	// EnterStatus, when set, is applied together with the reservation.
	EnterStatus *quiz.Status
}

type ReserveStageResult struct {
	Reserved   bool
	SkipReason SkipReason
	// Snapshot is the row as it stood after the reservation write.
	Snapshot quiz.Quiz
}

type TransitionStatusInput struct {
	QuizID uuid.UUID
	To     quiz.Status
	// Reason is required when To is failed and must be nil otherwise.
	Reason *quiz.FailureReason
	Fields map[string]any
}

type TransitionStatusResult struct {
	QuizID    uuid.UUID
	From      quiz.Status
	To        quiz.Status
	Reason    *quiz.FailureReason
	UpdatedAt time.Time
}

type SaveBatchInput struct {
	QuizID       uuid.UUID
	ModuleID     string
	QuestionType string
	Difficulty   quiz.Difficulty
	Items        []json.RawMessage
}

type SaveBatchResult struct {
	BatchKey string
	Saved    int
	Replaced int
}

type RecordGenerationInput struct {
	QuizID       uuid.UUID
	Succeeded    []string
	Failed       []string
	ExpectedKeys []string
	// GeneratorErrored selects llm_generation_error over no_questions_generated
	// when nothing succeeded.
	GeneratorErrored bool
}

type RecordGenerationResult struct {
	Status   quiz.Status
	Reason   *quiz.FailureReason
	Metadata quiz.GenerationMetadata
}

type RecordExportInput struct {
	QuizID       uuid.UUID
	CanvasQuizID string
	ItemIDs      map[uuid.UUID]string
	ExportedAt   time.Time
}

type FailStageInput struct {
	QuizID uuid.UUID
	Stage  quiz.Stage
	Reason quiz.FailureReason
	Cause  string
}

type FailStageResult struct {
	Applied bool
	From    quiz.Status
	// Stage is the stage whose flag was failed; see quiz.Quiz.ActiveStage.
	Stage quiz.Stage
}
