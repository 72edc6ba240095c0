package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/quizbridge-backend/internal/data/repos"
	repotestutil "github.com/yungbote/quizbridge-backend/internal/data/repos/testutil"
	"github.com/yungbote/quizbridge-backend/internal/domain/quiz"
	"github.com/yungbote/quizbridge-backend/internal/http/middleware"
	quizmod "github.com/yungbote/quizbridge-backend/internal/modules/quiz"
	"github.com/yungbote/quizbridge-backend/internal/platform/dbctx"
)

type quizAPI struct {
	engine *gin.Engine
	db     *gorm.DB
	repos  repos.Repos
}

// newQuizAPI serves the read and review endpoints. Trigger tests only cover
// requests rejected before anything is scheduled, so no runner is wired.
func newQuizAPI(t *testing.T) *quizAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := repotestutil.DB(t)
	log := repotestutil.Logger(t)
	r := repos.New(db, log)
	h := NewQuizHandler(log, quizmod.NewUsecases(quizmod.UsecasesDeps{
		Log:          log,
		Quizzes:      r.Quizzes,
		Questions:    r.Questions,
		DefaultModel: "gpt-4o-mini",
	}))

	e := gin.New()
	e.Use(middleware.AttachRequestContext())
	api := e.Group("/api", middleware.RequireUser())
	api.POST("/quizzes", h.CreateQuiz)
	api.GET("/quizzes/:id", h.GetQuiz)
	api.GET("/quizzes/:id/questions", h.ListQuestions)
	api.POST("/quizzes/:id/questions/:questionID/approve", h.ApproveQuestion)
	api.POST("/quizzes/:id/extract", h.TriggerExtraction)
	api.POST("/quizzes/:id/export", h.TriggerExport)
	return &quizAPI{engine: e, db: db, repos: r}
}

func (a *quizAPI) do(t *testing.T, method, path string, user uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != uuid.Nil {
		req.Header.Set("X-User-Id", user.String())
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return env.Error.Code
}

func TestCreateAndGetQuizScopedToOwner(t *testing.T) {
	api := newQuizAPI(t)
	owner := uuid.New()

	w := api.do(t, http.MethodPost, "/api/quizzes", owner, map[string]any{
		"canvas_course_id": 12,
		"title":            "Midterm review",
		"selected_modules": repotestutil.DefaultModules(),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status=%d body=%s", w.Code, w.Body.String())
	}
	var created struct {
		Quiz quiz.Quiz `json:"quiz"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	if created.Quiz.Status != quiz.StatusCreated || created.Quiz.LLMModel != "gpt-4o-mini" {
		t.Fatalf("unexpected quiz: %+v", created.Quiz)
	}

	path := "/api/quizzes/" + created.Quiz.ID.String()
	if w := api.do(t, http.MethodGet, path, owner, nil); w.Code != http.StatusOK {
		t.Fatalf("get as owner: status=%d", w.Code)
	}
	if w := api.do(t, http.MethodGet, path, uuid.New(), nil); w.Code != http.StatusNotFound {
		t.Fatalf("get as stranger: status=%d", w.Code)
	}
	if w := api.do(t, http.MethodGet, path, uuid.Nil, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("get without user: status=%d", w.Code)
	}
	if w := api.do(t, http.MethodGet, "/api/quizzes/not-a-uuid", owner, nil); w.Code != http.StatusBadRequest || errorCode(t, w) != "invalid_id" {
		t.Fatalf("bad id: status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestCreateQuizRejectsInvalidBody(t *testing.T) {
	api := newQuizAPI(t)
	w := api.do(t, http.MethodPost, "/api/quizzes", uuid.New(), map[string]any{"title": "No course"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if code := errorCode(t, w); code != "invalid_quiz" {
		t.Fatalf("code=%s", code)
	}
}

func TestApproveQuestionEndpoint(t *testing.T) {
	api := newQuizAPI(t)
	ctx := context.Background()
	q := repotestutil.SeedQuiz(t, ctx, api.db, repotestutil.WithStatus(quiz.StatusReadyForReview))
	question := repotestutil.SeedQuestion(t, ctx, api.db, q.ID, "101_multiple_choice_medium", 1, false)

	path := "/api/quizzes/" + q.ID.String() + "/questions/" + question.ID.String() + "/approve"
	if w := api.do(t, http.MethodPost, path, q.OwnerUserID, nil); w.Code != http.StatusOK {
		t.Fatalf("approve: status=%d body=%s", w.Code, w.Body.String())
	}
	n, err := api.repos.Questions.CountApproved(dbctx.Context{Ctx: ctx}, q.ID)
	if err != nil || n != 1 {
		t.Fatalf("approved count: n=%d err=%v", n, err)
	}

	if w := api.do(t, http.MethodPost, path, q.OwnerUserID, map[string]bool{"approved": false}); w.Code != http.StatusOK {
		t.Fatalf("unapprove: status=%d body=%s", w.Code, w.Body.String())
	}
	if n, _ := api.repos.Questions.CountApproved(dbctx.Context{Ctx: ctx}, q.ID); n != 0 {
		t.Fatalf("approved count after unapprove: %d", n)
	}

	missing := "/api/quizzes/" + q.ID.String() + "/questions/" + uuid.NewString() + "/approve"
	if w := api.do(t, http.MethodPost, missing, q.OwnerUserID, nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing question: status=%d", w.Code)
	}
}

func TestTriggerRejectionsMapToStatusCodes(t *testing.T) {
	api := newQuizAPI(t)
	ctx := context.Background()
	db := api.db

	ready := repotestutil.SeedQuiz(t, ctx, db, repotestutil.WithStatus(quiz.StatusReadyForReview))
	w := api.do(t, http.MethodPost, "/api/quizzes/"+ready.ID.String()+"/extract", ready.OwnerUserID, nil)
	if w.Code != http.StatusConflict || errorCode(t, w) != "extraction_not_allowed" {
		t.Fatalf("extract from review: status=%d body=%s", w.Code, w.Body.String())
	}

	w = api.do(t, http.MethodPost, "/api/quizzes/"+ready.ID.String()+"/export", ready.OwnerUserID, nil)
	if w.Code != http.StatusBadRequest || errorCode(t, w) != "canvas_token_required" {
		t.Fatalf("export without token: status=%d body=%s", w.Code, w.Body.String())
	}

	created := repotestutil.SeedQuiz(t, ctx, db)
	w = api.do(t, http.MethodPost, "/api/quizzes/"+created.ID.String()+"/extract", created.OwnerUserID, nil)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "canvas_token_required") {
		t.Fatalf("extract without token: status=%d body=%s", w.Code, w.Body.String())
	}
}
