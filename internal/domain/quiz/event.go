package quiz

import (
	"time"

	"github.com/google/uuid"
)

// StatusEvent is fanned out whenever a stage records a lifecycle change.
type StatusEvent struct {
	QuizID        uuid.UUID      `json:"quiz_id"`
	OwnerUserID   uuid.UUID      `json:"owner_user_id"`
	Stage         Stage          `json:"stage"`
	Status        Status         `json:"status"`
	FailureReason *FailureReason `json:"failure_reason,omitempty"`
	At            time.Time      `json:"at"`
}
