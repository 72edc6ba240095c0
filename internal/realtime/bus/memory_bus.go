package bus

import (
	"context"
	"sync"

	"github.com/yungbote/quizbridge-backend/internal/domain/quiz"
)

// memoryBus delivers events to in-process forwarders. It is used when no
// Redis address is configured.
type memoryBus struct {
	mu       sync.RWMutex
	handlers []func(quiz.StatusEvent)
}

func NewMemoryBus() Bus { return &memoryBus{} }

func (b *memoryBus) PublishStatus(ctx context.Context, ev quiz.StatusEvent) error {
	b.mu.RLock()
	hs := append([]func(quiz.StatusEvent){}, b.handlers...)
	b.mu.RUnlock()
	for _, h := range hs {
		h(ev)
	}
	return nil
}

func (b *memoryBus) StartForwarder(ctx context.Context, onEvent func(ev quiz.StatusEvent)) error {
	if onEvent == nil {
		return nil
	}
	b.mu.Lock()
	b.handlers = append(b.handlers, onEvent)
	b.mu.Unlock()
	return nil
}

func (b *memoryBus) Close() error {
	b.mu.Lock()
	b.handlers = nil
	b.mu.Unlock()
	return nil
}
