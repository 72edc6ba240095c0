package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/quizbridge-backend/internal/http/middleware"
	"github.com/yungbote/quizbridge-backend/internal/http/response"
	quizmod "github.com/yungbote/quizbridge-backend/internal/modules/quiz"
	"github.com/yungbote/quizbridge-backend/internal/platform/apierr"
	"github.com/yungbote/quizbridge-backend/internal/platform/ctxutil"
	"github.com/yungbote/quizbridge-backend/internal/platform/logger"
)

type QuizHandler struct {
	log  *logger.Logger
	quiz quizmod.Usecases
}

func NewQuizHandler(log *logger.Logger, quiz quizmod.Usecases) *QuizHandler {
	return &QuizHandler{log: log.With("handler", "QuizHandler"), quiz: quiz}
}

func userID(c *gin.Context) uuid.UUID {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil {
		return uuid.Nil
	}
	return rd.UserID
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_"+name, err)
		return uuid.Nil, false
	}
	return id, true
}

func (h *QuizHandler) respondErr(c *gin.Context, fallback string, err error) {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		if ae.Status >= http.StatusInternalServerError {
			h.log.Error("request failed", "code", ae.Code, "error", ae.Err)
		}
		response.RespondError(c, ae.Status, ae.Code, ae.Err)
		return
	}
	h.log.Error("request failed", "code", fallback, "error", err)
	response.RespondError(c, http.StatusInternalServerError, fallback, err)
}

// POST /api/quizzes
func (h *QuizHandler) CreateQuiz(c *gin.Context) {
	var in quizmod.CreateQuizInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_json", err)
		return
	}
	in.OwnerUserID = userID(c)
	q, err := h.quiz.CreateQuiz(c.Request.Context(), in)
	if err != nil {
		h.respondErr(c, "create_quiz_failed", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"quiz": q})
}

// GET /api/quizzes
func (h *QuizHandler) ListQuizzes(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	out, err := h.quiz.ListQuizzes(c.Request.Context(), userID(c), limit)
	if err != nil {
		h.respondErr(c, "list_quizzes_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"quizzes": out})
}

// GET /api/quizzes/:id
func (h *QuizHandler) GetQuiz(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	q, err := h.quiz.GetQuiz(c.Request.Context(), userID(c), id)
	if err != nil {
		h.respondErr(c, "load_quiz_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"quiz": q})
}

// GET /api/quizzes/:id/questions
func (h *QuizHandler) ListQuestions(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	out, err := h.quiz.ListQuestions(c.Request.Context(), userID(c), id)
	if err != nil {
		h.respondErr(c, "list_questions_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"questions": out})
}

type approveRequest struct {
	Approved *bool `json:"approved"`
}

// POST /api/quizzes/:id/questions/:questionID/approve
func (h *QuizHandler) ApproveQuestion(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	questionID, ok := pathUUID(c, "questionID")
	if !ok {
		return
	}
	var req approveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_json", err)
			return
		}
	}
	approved := true
	if req.Approved != nil {
		approved = *req.Approved
	}
	err := h.quiz.ApproveQuestion(c.Request.Context(), quizmod.ApproveQuestionInput{
		OwnerUserID: userID(c),
		QuizID:      id,
		QuestionID:  questionID,
		Approved:    approved,
	})
	if err != nil {
		h.respondErr(c, "approve_question_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"question_id": questionID, "approved": approved})
}

// POST /api/quizzes/:id/extract
func (h *QuizHandler) TriggerExtraction(c *gin.Context) {
	h.trigger(c, h.quiz.TriggerExtraction)
}

// POST /api/quizzes/:id/generate
func (h *QuizHandler) TriggerGeneration(c *gin.Context) {
	h.trigger(c, h.quiz.TriggerGeneration)
}

// POST /api/quizzes/:id/export
func (h *QuizHandler) TriggerExport(c *gin.Context) {
	h.trigger(c, h.quiz.TriggerExport)
}

type triggerFunc func(ctx context.Context, in quizmod.TriggerInput) (quizmod.TriggerResult, error)

func (h *QuizHandler) trigger(c *gin.Context, fn triggerFunc) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	res, err := fn(c.Request.Context(), quizmod.TriggerInput{
		OwnerUserID: userID(c),
		QuizID:      id,
		CanvasToken: middleware.CanvasToken(c),
	})
	if err != nil {
		h.respondErr(c, "trigger_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}
