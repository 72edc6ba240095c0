package quiz

// Status is the overall lifecycle status of a quiz.
type Status string

const (
	StatusCreated               Status = "created"
	StatusExtractingContent     Status = "extracting_content"
	StatusReadyForReview        Status = "ready_for_review"
	StatusReadyForReviewPartial Status = "ready_for_review_partial"
	StatusPublished             Status = "published"
	StatusFailed                Status = "failed"
)

// FailureReason is set on a quiz if and only if its status is StatusFailed.
type FailureReason string

const (
	FailureNoContentFound         FailureReason = "no_content_found"
	FailureContentExtractionError FailureReason = "content_extraction_error"
	FailureLLMGenerationError     FailureReason = "llm_generation_error"
	FailureNoQuestionsGenerated   FailureReason = "no_questions_generated"
	FailureCanvasExportError      FailureReason = "canvas_export_error"
	FailureValidationError        FailureReason = "validation_error"
)

// Stage names a reservable pipeline step.
type Stage string

const (
	StageExtraction Stage = "extraction"
	StageGeneration Stage = "generation"
	StageExport     Stage = "export"
)

// StageStatus is the per-stage progress flag the reservation guard inspects.
type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageProcessing StageStatus = "processing"
	StageCompleted  StageStatus = "completed"
	StageFailed     StageStatus = "failed"
)

var transitions = map[Status][]Status{
	StatusCreated:               {StatusExtractingContent, StatusFailed},
	StatusExtractingContent:     {StatusExtractingContent, StatusReadyForReview, StatusReadyForReviewPartial, StatusFailed},
	StatusReadyForReview:        {StatusPublished, StatusFailed},
	StatusReadyForReviewPartial: {StatusReadyForReview, StatusReadyForReviewPartial, StatusPublished, StatusFailed},
	StatusPublished:             nil,
	StatusFailed:                nil,
}

// CanTransition reports whether from -> to is allowed by the lifecycle table.
// Self-transitions are only allowed where listed (EXTRACTING_CONTENT rewrites its
// own content and the partial state can be re-aggregated by a generation retry).
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) Terminal() bool {
	return s == StatusPublished || s == StatusFailed
}

func (s Status) ReadyForReview() bool {
	return s == StatusReadyForReview || s == StatusReadyForReviewPartial
}

// FailureReasonForStage maps an unrecorded stage failure (timeout, panic, escaped error)
// onto the reason persisted by the background safety wrapper.
func FailureReasonForStage(stage Stage) FailureReason {
	switch stage {
	case StageExtraction:
		return FailureContentExtractionError
	case StageGeneration:
		return FailureLLMGenerationError
	case StageExport:
		return FailureCanvasExportError
	default:
		return FailureValidationError
	}
}

// Column returns the quiz column holding the stage's status.
func (s Stage) Column() string {
	switch s {
	case StageExtraction:
		return "content_extraction_status"
	case StageGeneration:
		return "llm_generation_status"
	case StageExport:
		return "export_status"
	default:
		return ""
	}
}
