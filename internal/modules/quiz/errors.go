package quiz

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/quizbridge-backend/internal/platform/canvas"
)

var (
	errNoContent   = errors.New("extracted content has no words")
	errNoApproved  = errors.New("quiz has no approved questions")
	errNoExtractor = errors.New("no content extractor configured")
)

// ExportPartialFailure means at least one item did not reach Canvas, so the
// whole export was rolled back.
type ExportPartialFailure struct {
	QuizID       uuid.UUID
	CanvasQuizID string
	Total        int
	Succeeded    int
	Failures     []canvas.ItemResult
	Err          error
}

func (e *ExportPartialFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "exported %d of %d items to canvas quiz %s", e.Succeeded, e.Total, e.CanvasQuizID)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	for i, f := range e.Failures {
		if i == 3 {
			fmt.Fprintf(&b, "; and %d more", len(e.Failures)-i)
			break
		}
		fmt.Fprintf(&b, "; %s: %s", f.Ref, f.Error)
	}
	return b.String()
}

func (e *ExportPartialFailure) Unwrap() error { return e.Err }
