// Package bus fans quiz status events out to other processes.
package bus

import (
	"context"

	"github.com/yungbote/quizbridge-backend/internal/domain/quiz"
)

type Bus interface {
	PublishStatus(ctx context.Context, ev quiz.StatusEvent) error
	StartForwarder(ctx context.Context, onEvent func(ev quiz.StatusEvent)) error
	Close() error
}
