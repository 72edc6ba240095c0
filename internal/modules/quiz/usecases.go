package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/quizbridge-backend/internal/data/repos"
	types "github.com/yungbote/quizbridge-backend/internal/domain/quiz"
	"github.com/yungbote/quizbridge-backend/internal/jobs/worker"
	"github.com/yungbote/quizbridge-backend/internal/modules/quiz/questiontypes"
	"github.com/yungbote/quizbridge-backend/internal/platform/apierr"
	"github.com/yungbote/quizbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/quizbridge-backend/internal/platform/logger"
	"github.com/yungbote/quizbridge-backend/internal/platform/validate"
)

type UsecasesDeps struct {
	Log       *logger.Logger
	Quizzes   repos.QuizRepo
	Questions repos.QuestionRepo
	Registry  *questiontypes.Registry

	Stages *Stages
	Runner *worker.Runner

	Timeouts     Timeouts
	DefaultModel string
}

type Usecases struct {
	deps UsecasesDeps
}

func NewUsecases(deps UsecasesDeps) Usecases {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Registry == nil {
		deps.Registry = questiontypes.Default()
	}
	return Usecases{deps: deps}
}

type CreateQuizInput struct {
	OwnerUserID      uuid.UUID                       `json:"-"`
	CanvasCourseID   int64                           `json:"canvas_course_id" validate:"required,gt=0"`
	CanvasCourseName string                          `json:"canvas_course_name" validate:"max=255"`
	Title            string                          `json:"title" validate:"required,min=1,max=255"`
	SelectedModules  map[string]types.SelectedModule `json:"selected_modules" validate:"required,min=1"`
	LLMModel         string                          `json:"llm_model" validate:"max=100"`
	LLMTemperature   float64                         `json:"llm_temperature" validate:"gte=0,lte=2"`
	Language         string                          `json:"language" validate:"max=10"`
	Tone             string                          `json:"tone" validate:"max=50"`
}

func (u Usecases) CreateQuiz(ctx context.Context, in CreateQuizInput) (*types.Quiz, error) {
	if in.OwnerUserID == uuid.Nil {
		return nil, apierr.New(http.StatusUnauthorized, "unauthorized", nil)
	}
	in.Title = strings.TrimSpace(in.Title)
	if err := validate.Struct(in); err != nil {
		return nil, apierr.New(http.StatusBadRequest, "invalid_quiz", err)
	}
	if err := types.ValidateSelectedModules(in.SelectedModules, u.deps.Registry.Known); err != nil {
		return nil, apierr.New(http.StatusBadRequest, "invalid_selected_modules", err)
	}
	modulesJSON, err := json.Marshal(in.SelectedModules)
	if err != nil {
		return nil, apierr.New(http.StatusBadRequest, "invalid_selected_modules", err)
	}
	model := strings.TrimSpace(in.LLMModel)
	if model == "" {
		model = u.deps.DefaultModel
	}
	language := strings.TrimSpace(in.Language)
	if language == "" {
		language = "en"
	}
	tone := strings.TrimSpace(in.Tone)
	if tone == "" {
		tone = "academic"
	}
	q := &types.Quiz{
		OwnerUserID:      in.OwnerUserID,
		CanvasCourseID:   in.CanvasCourseID,
		CanvasCourseName: strings.TrimSpace(in.CanvasCourseName),
		Title:            in.Title,
		SelectedModules:  datatypes.JSON(modulesJSON),
		LLMModel:         model,
		LLMTemperature:   in.LLMTemperature,
		Language:         language,
		Tone:             tone,
	}
	created, err := u.deps.Quizzes.Create(dbctx.Context{Ctx: ctx}, q)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "create_quiz_failed", err)
	}
	u.deps.Log.Info("quiz created", "quiz_id", created.ID, "owner_user_id", created.OwnerUserID)
	return created, nil
}

// GetQuiz loads a quiz owned by ownerID.
func (u Usecases) GetQuiz(ctx context.Context, ownerID, quizID uuid.UUID) (*types.Quiz, error) {
	if ownerID == uuid.Nil {
		return nil, apierr.New(http.StatusUnauthorized, "unauthorized", nil)
	}
	if quizID == uuid.Nil {
		return nil, apierr.New(http.StatusBadRequest, "invalid_quiz_id", fmt.Errorf("missing quiz_id"))
	}
	q, err := u.deps.Quizzes.GetByID(dbctx.Context{Ctx: ctx}, quizID)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "load_quiz_failed", err)
	}
	if q == nil || q.OwnerUserID != ownerID {
		return nil, apierr.New(http.StatusNotFound, "quiz_not_found", nil)
	}
	return q, nil
}

func (u Usecases) ListQuizzes(ctx context.Context, ownerID uuid.UUID, limit int) ([]*types.Quiz, error) {
	if ownerID == uuid.Nil {
		return nil, apierr.New(http.StatusUnauthorized, "unauthorized", nil)
	}
	out, err := u.deps.Quizzes.ListByOwner(dbctx.Context{Ctx: ctx}, ownerID, limit)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "list_quizzes_failed", err)
	}
	return out, nil
}

func (u Usecases) ListQuestions(ctx context.Context, ownerID, quizID uuid.UUID) ([]*types.Question, error) {
	if _, err := u.GetQuiz(ctx, ownerID, quizID); err != nil {
		return nil, err
	}
	out, err := u.deps.Questions.ListByQuiz(dbctx.Context{Ctx: ctx}, quizID)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "list_questions_failed", err)
	}
	return out, nil
}

type ApproveQuestionInput struct {
	OwnerUserID uuid.UUID
	QuizID      uuid.UUID
	QuestionID  uuid.UUID
	Approved    bool
}

// ApproveQuestion toggles review approval. Only quizzes under review accept it.
func (u Usecases) ApproveQuestion(ctx context.Context, in ApproveQuestionInput) error {
	q, err := u.GetQuiz(ctx, in.OwnerUserID, in.QuizID)
	if err != nil {
		return err
	}
	if !q.Status.ReadyForReview() {
		return apierr.New(http.StatusConflict, "quiz_not_in_review", fmt.Errorf("quiz status is %s", q.Status))
	}
	ok, err := u.deps.Questions.SetApproved(dbctx.Context{Ctx: ctx}, q.ID, in.QuestionID, in.Approved)
	if err != nil {
		return apierr.New(http.StatusInternalServerError, "approve_question_failed", err)
	}
	if !ok {
		return apierr.New(http.StatusNotFound, "question_not_found", nil)
	}
	return nil
}

type TriggerInput struct {
	OwnerUserID uuid.UUID
	QuizID      uuid.UUID
	CanvasToken string
}

type TriggerResult struct {
	QuizID        uuid.UUID   `json:"quiz_id"`
	Stage         types.Stage `json:"stage"`
	CorrelationID string      `json:"correlation_id"`
}

// TriggerExtraction schedules extraction, which chains into generation, so
// the task budget covers both.
func (u Usecases) TriggerExtraction(ctx context.Context, in TriggerInput) (TriggerResult, error) {
	q, err := u.GetQuiz(ctx, in.OwnerUserID, in.QuizID)
	if err != nil {
		return TriggerResult{}, err
	}
	if q.Status != types.StatusCreated || q.ContentExtractionStatus == types.StageProcessing {
		return TriggerResult{}, apierr.New(http.StatusConflict, "extraction_not_allowed",
			fmt.Errorf("quiz status is %s, extraction is %s", q.Status, q.ContentExtractionStatus))
	}
	if needsCanvas(q) && strings.TrimSpace(in.CanvasToken) == "" {
		return TriggerResult{}, apierr.New(http.StatusBadRequest, "canvas_token_required", nil)
	}
	budget := u.deps.Timeouts.Extraction + u.deps.Timeouts.Generation
	return u.schedule(q, types.StageExtraction, budget, func(ctx context.Context) (Outcome, error) {
		return u.deps.Stages.ExtractContent(ctx, ExtractionInput{QuizID: q.ID, CanvasToken: in.CanvasToken})
	}), nil
}

func (u Usecases) TriggerGeneration(ctx context.Context, in TriggerInput) (TriggerResult, error) {
	q, err := u.GetQuiz(ctx, in.OwnerUserID, in.QuizID)
	if err != nil {
		return TriggerResult{}, err
	}
	allowed := q.Status == types.StatusExtractingContent || q.Status == types.StatusReadyForReviewPartial
	if !allowed || q.ContentExtractionStatus != types.StageCompleted || q.LLMGenerationStatus == types.StageProcessing {
		return TriggerResult{}, apierr.New(http.StatusConflict, "generation_not_allowed",
			fmt.Errorf("quiz status is %s, generation is %s", q.Status, q.LLMGenerationStatus))
	}
	if q.ExportStatus == types.StageProcessing || q.ExportStatus == types.StageCompleted {
		return TriggerResult{}, apierr.New(http.StatusConflict, "generation_not_allowed",
			fmt.Errorf("export is %s", q.ExportStatus))
	}
	return u.schedule(q, types.StageGeneration, u.deps.Timeouts.Generation, func(ctx context.Context) (Outcome, error) {
		return u.deps.Stages.GenerateQuestions(ctx, GenerationInput{QuizID: q.ID})
	}), nil
}

func (u Usecases) TriggerExport(ctx context.Context, in TriggerInput) (TriggerResult, error) {
	q, err := u.GetQuiz(ctx, in.OwnerUserID, in.QuizID)
	if err != nil {
		return TriggerResult{}, err
	}
	if !q.Status.ReadyForReview() || q.ExportStatus == types.StageProcessing {
		return TriggerResult{}, apierr.New(http.StatusConflict, "export_not_allowed",
			fmt.Errorf("quiz status is %s, export is %s", q.Status, q.ExportStatus))
	}
	if q.LLMGenerationStatus == types.StageProcessing {
		return TriggerResult{}, apierr.New(http.StatusConflict, "export_not_allowed",
			errors.New("generation is still running"))
	}
	if strings.TrimSpace(in.CanvasToken) == "" {
		return TriggerResult{}, apierr.New(http.StatusBadRequest, "canvas_token_required", nil)
	}
	n, err := u.deps.Questions.CountApproved(dbctx.Context{Ctx: ctx}, q.ID)
	if err != nil {
		return TriggerResult{}, apierr.New(http.StatusInternalServerError, "count_approved_failed", err)
	}
	if n == 0 {
		return TriggerResult{}, apierr.New(http.StatusBadRequest, "no_approved_questions", errNoApproved)
	}
	return u.schedule(q, types.StageExport, u.deps.Timeouts.Export, func(ctx context.Context) (Outcome, error) {
		return u.deps.Stages.ExportToCanvas(ctx, ExportInput{QuizID: q.ID, CanvasToken: in.CanvasToken})
	}), nil
}

func (u Usecases) schedule(q *types.Quiz, stage types.Stage, budget time.Duration, run func(ctx context.Context) (Outcome, error)) TriggerResult {
	log := u.deps.Log.With("quiz_id", q.ID.String(), "stage", string(stage))
	id := u.deps.Runner.Go(worker.Task{
		QuizID: q.ID,
		Stage:  stage,
		Budget: budget,
		Run: func(ctx context.Context) error {
			out, err := run(ctx)
			if err != nil {
				return err
			}
			logOutcome(log, out)
			return nil
		},
	})
	return TriggerResult{QuizID: q.ID, Stage: stage, CorrelationID: id}
}

func logOutcome(log *logger.Logger, out Outcome) {
	switch out.Kind {
	case OutcomeSkip:
		log.Info("stage skipped", "reason", out.SkipReason, "status", out.Status)
	case OutcomeFail:
		log.Warn("stage failed", "reason", *out.Reason, "error", out.Err)
	default:
		log.Info("stage finished", "status", out.Status)
	}
	if out.Next != nil {
		logOutcome(log.With("stage", string(out.Next.Stage)), *out.Next)
	}
	if out.NextErr != nil {
		var te *worker.TimeoutError
		log.Warn("chained stage failed", "error", out.NextErr, "timeout", errors.As(out.NextErr, &te))
	}
}

func needsCanvas(q *types.Quiz) bool {
	modules, err := q.Modules()
	if err != nil {
		return true
	}
	for _, m := range modules {
		if m.SourceType != types.SourceManual {
			return true
		}
	}
	return false
}
