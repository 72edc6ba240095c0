package handlers

import (
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/quizbridge-backend/internal/domain/quiz"
	"github.com/yungbote/quizbridge-backend/internal/http/response"
	"github.com/yungbote/quizbridge-backend/internal/platform/logger"
)

const clientBuffer = 16

// RealtimeHandler streams quiz status events to their owners over SSE. The
// app feeds it from the status bus through Dispatch.
type RealtimeHandler struct {
	log *logger.Logger

	mu      sync.RWMutex
	clients map[uuid.UUID]map[chan quiz.StatusEvent]struct{}

	keepAlive time.Duration
}

func NewRealtimeHandler(log *logger.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		log:       log.With("handler", "RealtimeHandler"),
		clients:   map[uuid.UUID]map[chan quiz.StatusEvent]struct{}{},
		keepAlive: 25 * time.Second,
	}
}

// Dispatch delivers ev to every open stream of the quiz owner. Slow clients
// drop events rather than block the bus.
func (h *RealtimeHandler) Dispatch(ev quiz.StatusEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients[ev.OwnerUserID] {
		select {
		case ch <- ev:
		default:
			h.log.Warn("dropping status event for slow client", "quiz_id", ev.QuizID, "status", ev.Status)
		}
	}
}

func (h *RealtimeHandler) subscribe(owner uuid.UUID) chan quiz.StatusEvent {
	ch := make(chan quiz.StatusEvent, clientBuffer)
	h.mu.Lock()
	if h.clients[owner] == nil {
		h.clients[owner] = map[chan quiz.StatusEvent]struct{}{}
	}
	h.clients[owner][ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *RealtimeHandler) unsubscribe(owner uuid.UUID, ch chan quiz.StatusEvent) {
	h.mu.Lock()
	delete(h.clients[owner], ch)
	if len(h.clients[owner]) == 0 {
		delete(h.clients, owner)
	}
	h.mu.Unlock()
}

// GET /api/quizzes/events
func (h *RealtimeHandler) StatusStream(c *gin.Context) {
	owner := userID(c)
	if owner == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	ch := h.subscribe(owner)
	defer h.unsubscribe(owner, ch)
	h.log.Debug("status stream open", "user_id", owner.String())

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev := <-ch:
			c.SSEvent("quiz_status", ev)
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		}
	})
}
