package handlers

import (
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/quizbridge-backend/internal/domain/quiz"
	"github.com/yungbote/quizbridge-backend/internal/platform/logger"
)

func TestRealtimeDispatchRoutesByOwner(t *testing.T) {
	h := NewRealtimeHandler(logger.Nop())
	owner, other := uuid.New(), uuid.New()
	mine := h.subscribe(owner)
	theirs := h.subscribe(other)

	ev := quiz.StatusEvent{QuizID: uuid.New(), OwnerUserID: owner, Status: quiz.StatusReadyForReview}
	h.Dispatch(ev)

	select {
	case got := <-mine:
		if got.QuizID != ev.QuizID {
			t.Fatalf("unexpected event: %+v", got)
		}
	default:
		t.Fatalf("owner did not receive the event")
	}
	select {
	case got := <-theirs:
		t.Fatalf("other user received %+v", got)
	default:
	}

	h.unsubscribe(owner, mine)
	for i := 0; i < clientBuffer+2; i++ {
		h.Dispatch(ev)
	}
	if _, ok := h.clients[owner]; ok {
		t.Fatalf("owner should have no streams left")
	}
}
