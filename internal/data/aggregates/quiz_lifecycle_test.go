package aggregates

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/quizbridge-backend/internal/data/repos"
	repotestutil "github.com/yungbote/quizbridge-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/quizbridge-backend/internal/domain/aggregates"
	"github.com/yungbote/quizbridge-backend/internal/domain/quiz"
	"github.com/yungbote/quizbridge-backend/internal/platform/dbctx"
)

func newLifecycle(t *testing.T, db *gorm.DB, runner TxRunner) (domainagg.QuizLifecycleAggregate, repos.Repos) {
	t.Helper()
	r := repos.New(db, repotestutil.Logger(t))
	agg := NewQuizLifecycleAggregate(QuizLifecycleAggregateDeps{
		Base:      BaseDeps{DB: db, Log: repotestutil.Logger(t), Runner: runner},
		Quizzes:   r.Quizzes,
		Questions: r.Questions,
	})
	return agg, r
}

func loadQuiz(t *testing.T, r repos.Repos, id uuid.UUID) *quiz.Quiz {
	t.Helper()
	q, err := r.Quizzes.GetByID(dbctx.Context{Ctx: context.Background()}, id)
	if err != nil || q == nil {
		t.Fatalf("load quiz: err=%v q=%v", err, q)
	}
	return q
}

func statusPtr(s quiz.Status) *quiz.Status { return &s }

func TestReserveStageIsExactlyOnceUnderConcurrency(t *testing.T) {
	db := repotestutil.DB(t)
	ctx := context.Background()
	agg, r := newLifecycle(t, db, nil)
	q := repotestutil.SeedQuiz(t, ctx, db)

	const callers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		reserved int
		skipped  int
		errs     []error
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := agg.ReserveStage(ctx, domainagg.ReserveStageInput{
				QuizID:        q.ID,
				Stage:         quiz.StageExtraction,
				RequireStatus: []quiz.Status{quiz.StatusCreated},
				EnterStatus:   statusPtr(quiz.StatusExtractingContent),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				errs = append(errs, err)
			case res.Reserved:
				reserved++
			default:
				skipped++
			}
		}()
	}
	close(start)
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("unexpected reservation errors: %v", errs)
	}
	if reserved != 1 || skipped != callers-1 {
		t.Fatalf("reserved=%d skipped=%d, want exactly one reservation", reserved, skipped)
	}
	got := loadQuiz(t, r, q.ID)
	if got.Status != quiz.StatusExtractingContent || got.ContentExtractionStatus != quiz.StageProcessing {
		t.Fatalf("after reserve: status=%s extraction=%s", got.Status, got.ContentExtractionStatus)
	}
}

func TestReserveStageSkipReasons(t *testing.T) {
	db := repotestutil.DB(t)
	ctx := context.Background()
	agg, _ := newLifecycle(t, db, nil)

	notReady := repotestutil.SeedQuiz(t, ctx, db)
	res, err := agg.ReserveStage(ctx, domainagg.ReserveStageInput{
		QuizID:        notReady.ID,
		Stage:         quiz.StageExport,
		RequireStatus: []quiz.Status{quiz.StatusReadyForReview, quiz.StatusReadyForReviewPartial},
	})
	if err != nil || res.Reserved || res.SkipReason != domainagg.SkipStatusNotReady {
		t.Fatalf("export before review: res=%+v err=%v", res, err)
	}

	extracting := repotestutil.SeedQuiz(t, ctx, db, repotestutil.WithStatus(quiz.StatusExtractingContent))
	res, err = agg.ReserveStage(ctx, domainagg.ReserveStageInput{
		QuizID:           extracting.ID,
		Stage:            quiz.StageGeneration,
		RequireStatus:    []quiz.Status{quiz.StatusExtractingContent},
		RequireCompleted: []quiz.Stage{quiz.StageExtraction},
	})
	if err != nil || res.Reserved || res.SkipReason != domainagg.SkipStatusNotReady {
		t.Fatalf("generation before extraction finished: res=%+v err=%v", res, err)
	}

	canvasID := "cq-1"
	exported := repotestutil.SeedQuiz(t, ctx, db,
		repotestutil.WithStatus(quiz.StatusPublished),
		repotestutil.WithStageStatus(quiz.StageExport, quiz.StageCompleted),
		func(q *quiz.Quiz) { q.CanvasQuizID = &canvasID },
	)
	res, err = agg.ReserveStage(ctx, domainagg.ReserveStageInput{QuizID: exported.ID, Stage: quiz.StageExport})
	if err != nil || res.SkipReason != domainagg.SkipAlreadyExported {
		t.Fatalf("already exported: res=%+v err=%v", res, err)
	}

	failed := repotestutil.SeedQuiz(t, ctx, db, func(q *quiz.Quiz) {
		q.Status = quiz.StatusFailed
		r := quiz.FailureNoContentFound
		q.FailureReason = &r
	})
	res, err = agg.ReserveStage(ctx, domainagg.ReserveStageInput{QuizID: failed.ID, Stage: quiz.StageGeneration})
	if err != nil || res.SkipReason != domainagg.SkipTerminal {
		t.Fatalf("terminal: res=%+v err=%v", res, err)
	}

	_, err = agg.ReserveStage(ctx, domainagg.ReserveStageInput{QuizID: uuid.New(), Stage: quiz.StageExtraction})
	if !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("missing quiz: expected not_found, got %v", err)
	}
}

func TestReserveStageRefusesWhileOtherStageBusy(t *testing.T) {
	db := repotestutil.DB(t)
	ctx := context.Background()
	agg, r := newLifecycle(t, db, nil)
	partial := func() *quiz.Quiz {
		return repotestutil.SeedQuiz(t, ctx, db,
			repotestutil.WithStatus(quiz.StatusReadyForReviewPartial),
			repotestutil.WithStageStatus(quiz.StageExtraction, quiz.StageCompleted),
			repotestutil.WithStageStatus(quiz.StageGeneration, quiz.StageFailed),
			repotestutil.WithMetadata(quiz.GenerationMetadata{
				SuccessfulBatches: []string{"101_true_false_easy"},
				FailedBatches:     []string{"101_multiple_choice_medium"},
			}),
		)
	}
	reserveGeneration := func(id uuid.UUID) domainagg.ReserveStageResult {
		t.Helper()
		res, err := agg.ReserveStage(ctx, domainagg.ReserveStageInput{
			QuizID:           id,
			Stage:            quiz.StageGeneration,
			RequireStatus:    []quiz.Status{quiz.StatusExtractingContent, quiz.StatusReadyForReviewPartial},
			RequireCompleted: []quiz.Stage{quiz.StageExtraction},
			RequireIdle:      []quiz.Stage{quiz.StageExport},
		})
		if err != nil {
			t.Fatalf("reserve generation: %v", err)
		}
		return res
	}
	reserveExport := func(id uuid.UUID) domainagg.ReserveStageResult {
		t.Helper()
		res, err := agg.ReserveStage(ctx, domainagg.ReserveStageInput{
			QuizID:        id,
			Stage:         quiz.StageExport,
			RequireStatus: []quiz.Status{quiz.StatusReadyForReview, quiz.StatusReadyForReviewPartial},
			RequireIdle:   []quiz.Stage{quiz.StageGeneration},
		})
		if err != nil {
			t.Fatalf("reserve export: %v", err)
		}
		return res
	}

	// Generation re-run in flight blocks export.
	a := partial()
	if res := reserveGeneration(a.ID); !res.Reserved {
		t.Fatalf("generation retry not reserved: %+v", res)
	}
	if res := reserveExport(a.ID); res.Reserved || res.SkipReason != domainagg.SkipStageBusy {
		t.Fatalf("export during generation: %+v", res)
	}
	if got := loadQuiz(t, r, a.ID); got.ExportStatus != quiz.StagePending {
		t.Fatalf("export flag touched: %s", got.ExportStatus)
	}

	// Export in flight blocks a generation retry.
	b := partial()
	if res := reserveExport(b.ID); !res.Reserved {
		t.Fatalf("export not reserved: %+v", res)
	}
	if res := reserveGeneration(b.ID); res.Reserved || res.SkipReason != domainagg.SkipStageBusy {
		t.Fatalf("generation during export: %+v", res)
	}
	if got := loadQuiz(t, r, b.ID); got.LLMGenerationStatus != quiz.StageFailed {
		t.Fatalf("generation flag touched: %s", got.LLMGenerationStatus)
	}
}

func TestTransitionStatusEnforcesTableAndReasons(t *testing.T) {
	db := repotestutil.DB(t)
	ctx := context.Background()
	agg, r := newLifecycle(t, db, nil)
	q := repotestutil.SeedQuiz(t, ctx, db)

	_, err := agg.TransitionStatus(ctx, domainagg.TransitionStatusInput{QuizID: q.ID, To: quiz.StatusPublished})
	if !domainagg.IsCode(err, domainagg.CodeInvariantViolation) {
		t.Fatalf("created->published: expected invariant violation, got %v", err)
	}
	_, err = agg.TransitionStatus(ctx, domainagg.TransitionStatusInput{QuizID: q.ID, To: quiz.StatusFailed})
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("failed without reason: expected validation, got %v", err)
	}
	reason := quiz.FailureContentExtractionError
	_, err = agg.TransitionStatus(ctx, domainagg.TransitionStatusInput{QuizID: q.ID, To: quiz.StatusExtractingContent, Reason: &reason})
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("reason on non-failed: expected validation, got %v", err)
	}

	now := time.Now().UTC()
	res, err := agg.TransitionStatus(ctx, domainagg.TransitionStatusInput{
		QuizID: q.ID,
		To:     quiz.StatusExtractingContent,
		Fields: map[string]any{"content_extracted_at": now, "extracted_content": repotestutil.MustJSON(t, quiz.ExtractedContent{"m": {{Content: "c", WordCount: 1}}})},
	})
	if err != nil {
		t.Fatalf("created->extracting: %v", err)
	}
	if res.From != quiz.StatusCreated || res.To != quiz.StatusExtractingContent {
		t.Fatalf("unexpected result: %+v", res)
	}
	got := loadQuiz(t, r, q.ID)
	content, err := got.Content()
	if err != nil || len(content["m"]) != 1 || got.ContentExtractedAt == nil {
		t.Fatalf("fields not merged: content=%+v err=%v at=%v", content, err, got.ContentExtractedAt)
	}

	res, err = agg.TransitionStatus(ctx, domainagg.TransitionStatusInput{QuizID: q.ID, To: quiz.StatusFailed, Reason: &reason})
	if err != nil {
		t.Fatalf("extracting->failed: %v", err)
	}
	got = loadQuiz(t, r, q.ID)
	if got.Status != quiz.StatusFailed || got.FailureReason == nil || *got.FailureReason != reason {
		t.Fatalf("failed write: status=%s reason=%v", got.Status, got.FailureReason)
	}
}

func TestTransitionStatusRollsBackOnCommitFailure(t *testing.T) {
	db := repotestutil.DB(t)
	ctx := context.Background()
	runner := &commitFailingRunner{inner: NewGormTxRunner(db, DefaultTxOptions()), err: errors.New("commit lost")}
	agg, r := newLifecycle(t, db, runner)
	q := repotestutil.SeedQuiz(t, ctx, db)

	_, err := agg.TransitionStatus(ctx, domainagg.TransitionStatusInput{QuizID: q.ID, To: quiz.StatusExtractingContent})
	if err == nil {
		t.Fatalf("expected injected commit failure")
	}
	if got := loadQuiz(t, r, q.ID); got.Status != quiz.StatusCreated {
		t.Fatalf("status should be rolled back, got %s", got.Status)
	}
	if runner.calls != 1 {
		t.Fatalf("runner calls: want=1 got=%d", runner.calls)
	}
}

// commitFailingRunner runs the body in a real transaction, then fails it so the
// transaction rolls back.
type commitFailingRunner struct {
	inner TxRunner
	err   error
	calls int
}

func (r *commitFailingRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	r.calls++
	return r.inner.InTx(ctx, func(dbc dbctx.Context) error {
		if err := fn(dbc); err != nil {
			return err
		}
		return r.err
	})
}

func TestSaveBatchAndRecordGeneration(t *testing.T) {
	db := repotestutil.DB(t)
	ctx := context.Background()
	agg, r := newLifecycle(t, db, nil)
	q := repotestutil.SeedQuiz(t, ctx, db,
		repotestutil.WithStatus(quiz.StatusExtractingContent),
		repotestutil.WithStageStatus(quiz.StageExtraction, quiz.StageCompleted),
	)

	items := []json.RawMessage{json.RawMessage(`{"question_text":"a","correct_answer":true}`)}
	_, err := agg.SaveBatch(ctx, domainagg.SaveBatchInput{QuizID: q.ID, ModuleID: "101", QuestionType: "true_false", Difficulty: quiz.DifficultyEasy, Items: items})
	if !domainagg.IsCode(err, domainagg.CodePreconditionFailed) {
		t.Fatalf("save without reservation: expected precondition_failed, got %v", err)
	}

	res, err := agg.ReserveStage(ctx, domainagg.ReserveStageInput{QuizID: q.ID, Stage: quiz.StageGeneration})
	if err != nil || !res.Reserved {
		t.Fatalf("reserve generation: res=%+v err=%v", res, err)
	}
	saved, err := agg.SaveBatch(ctx, domainagg.SaveBatchInput{QuizID: q.ID, ModuleID: "101", QuestionType: "true_false", Difficulty: quiz.DifficultyEasy, Items: items})
	if err != nil || saved.Saved != 1 || saved.BatchKey != "101_true_false_easy" {
		t.Fatalf("SaveBatch: res=%+v err=%v", saved, err)
	}

	gen, err := agg.RecordGeneration(ctx, domainagg.RecordGenerationInput{
		QuizID:    q.ID,
		Succeeded: []string{"101_true_false_easy"},
		Failed:    []string{"101_multiple_choice_medium", "manual_1_multiple_choice_hard"},
	})
	if err != nil {
		t.Fatalf("RecordGeneration: %v", err)
	}
	if gen.Status != quiz.StatusReadyForReviewPartial {
		t.Fatalf("partial outcome: got %s", gen.Status)
	}
	got := loadQuiz(t, r, q.ID)
	if got.LLMGenerationStatus != quiz.StageFailed {
		t.Fatalf("partial generation must stay re-reservable, got %s", got.LLMGenerationStatus)
	}

	res, err = agg.ReserveStage(ctx, domainagg.ReserveStageInput{
		QuizID:        q.ID,
		Stage:         quiz.StageGeneration,
		RequireStatus: []quiz.Status{quiz.StatusExtractingContent, quiz.StatusReadyForReviewPartial},
	})
	if err != nil || !res.Reserved {
		t.Fatalf("re-reserve generation: res=%+v err=%v", res, err)
	}
	gen, err = agg.RecordGeneration(ctx, domainagg.RecordGenerationInput{
		QuizID:    q.ID,
		Succeeded: []string{"101_multiple_choice_medium", "manual_1_multiple_choice_hard"},
	})
	if err != nil || gen.Status != quiz.StatusReadyForReview {
		t.Fatalf("full outcome: res=%+v err=%v", gen, err)
	}
	if len(gen.Metadata.FailedBatches) != 0 || len(gen.Metadata.SuccessfulBatches) != 3 {
		t.Fatalf("merged metadata: %+v", gen.Metadata)
	}
}

func TestRecordGenerationWithNoSuccessFails(t *testing.T) {
	db := repotestutil.DB(t)
	ctx := context.Background()
	agg, r := newLifecycle(t, db, nil)
	q := repotestutil.SeedQuiz(t, ctx, db,
		repotestutil.WithStatus(quiz.StatusExtractingContent),
		repotestutil.WithStageStatus(quiz.StageGeneration, quiz.StageProcessing),
	)
	gen, err := agg.RecordGeneration(ctx, domainagg.RecordGenerationInput{
		QuizID:           q.ID,
		Failed:           []string{"101_true_false_easy"},
		GeneratorErrored: true,
	})
	if err != nil {
		t.Fatalf("RecordGeneration: %v", err)
	}
	if gen.Status != quiz.StatusFailed || gen.Reason == nil || *gen.Reason != quiz.FailureLLMGenerationError {
		t.Fatalf("unexpected outcome: %+v", gen)
	}
	if got := loadQuiz(t, r, q.ID); got.FailureReason == nil {
		t.Fatalf("failure reason must be persisted")
	}
}

func TestRecordExportPublishes(t *testing.T) {
	db := repotestutil.DB(t)
	ctx := context.Background()
	agg, r := newLifecycle(t, db, nil)
	q := repotestutil.SeedQuiz(t, ctx, db, repotestutil.WithStatus(quiz.StatusReadyForReview))
	question := repotestutil.SeedQuestion(t, ctx, db, q.ID, "101_true_false_easy", 0, true)

	if res, err := agg.ReserveStage(ctx, domainagg.ReserveStageInput{QuizID: q.ID, Stage: quiz.StageExport}); err != nil || !res.Reserved {
		t.Fatalf("reserve export: res=%+v err=%v", res, err)
	}
	out, err := agg.RecordExport(ctx, domainagg.RecordExportInput{
		QuizID:       q.ID,
		CanvasQuizID: "cq-77",
		ItemIDs:      map[uuid.UUID]string{question.ID: "item-1"},
	})
	if err != nil || out.To != quiz.StatusPublished {
		t.Fatalf("RecordExport: out=%+v err=%v", out, err)
	}
	got := loadQuiz(t, r, q.ID)
	if got.CanvasQuizID == nil || *got.CanvasQuizID != "cq-77" || got.ExportStatus != quiz.StageCompleted || got.ExportedAt == nil {
		t.Fatalf("export fields not persisted: %+v", got)
	}
}

func TestFailStageIsNoopOnTerminalQuiz(t *testing.T) {
	db := repotestutil.DB(t)
	ctx := context.Background()
	agg, r := newLifecycle(t, db, nil)

	active := repotestutil.SeedQuiz(t, ctx, db,
		repotestutil.WithStatus(quiz.StatusExtractingContent),
		repotestutil.WithStageStatus(quiz.StageExtraction, quiz.StageProcessing),
	)
	res, err := agg.FailStage(ctx, domainagg.FailStageInput{QuizID: active.ID, Stage: quiz.StageExtraction})
	if err != nil || !res.Applied {
		t.Fatalf("FailStage: res=%+v err=%v", res, err)
	}
	got := loadQuiz(t, r, active.ID)
	if got.FailureReason == nil || *got.FailureReason != quiz.FailureContentExtractionError || got.ContentExtractionStatus != quiz.StageFailed {
		t.Fatalf("unexpected failed row: reason=%v stage=%s", got.FailureReason, got.ContentExtractionStatus)
	}

	res, err = agg.FailStage(ctx, domainagg.FailStageInput{QuizID: active.ID, Stage: quiz.StageExtraction, Reason: quiz.FailureValidationError})
	if err != nil || res.Applied {
		t.Fatalf("second FailStage should be a no-op: res=%+v err=%v", res, err)
	}
	if got := loadQuiz(t, r, active.ID); *got.FailureReason != quiz.FailureContentExtractionError {
		t.Fatalf("terminal reason overwritten: %s", *got.FailureReason)
	}
}

func TestFailStageAttributesChainedGenerationFailure(t *testing.T) {
	db := repotestutil.DB(t)
	ctx := context.Background()
	agg, r := newLifecycle(t, db, nil)

	q := repotestutil.SeedQuiz(t, ctx, db,
		repotestutil.WithStatus(quiz.StatusExtractingContent),
		repotestutil.WithStageStatus(quiz.StageExtraction, quiz.StageCompleted),
		repotestutil.WithStageStatus(quiz.StageGeneration, quiz.StageProcessing),
	)
	res, err := agg.FailStage(ctx, domainagg.FailStageInput{
		QuizID: q.ID,
		Stage:  quiz.StageExtraction,
		Reason: quiz.FailureReasonForStage(quiz.StageExtraction),
		Cause:  "stage extraction exceeded its budget",
	})
	if err != nil || !res.Applied || res.Stage != quiz.StageGeneration {
		t.Fatalf("FailStage: res=%+v err=%v", res, err)
	}
	got := loadQuiz(t, r, q.ID)
	if got.FailureReason == nil || *got.FailureReason != quiz.FailureLLMGenerationError {
		t.Fatalf("reason=%v want %s", got.FailureReason, quiz.FailureLLMGenerationError)
	}
	if got.ContentExtractionStatus != quiz.StageCompleted || got.LLMGenerationStatus != quiz.StageFailed {
		t.Fatalf("flags: extraction=%s generation=%s", got.ContentExtractionStatus, got.LLMGenerationStatus)
	}

	explicit := repotestutil.SeedQuiz(t, ctx, db,
		repotestutil.WithStatus(quiz.StatusExtractingContent),
		repotestutil.WithStageStatus(quiz.StageExtraction, quiz.StageCompleted),
		repotestutil.WithStageStatus(quiz.StageGeneration, quiz.StageProcessing),
	)
	if _, err := agg.FailStage(ctx, domainagg.FailStageInput{QuizID: explicit.ID, Stage: quiz.StageExtraction, Reason: quiz.FailureNoQuestionsGenerated}); err != nil {
		t.Fatalf("FailStage explicit: %v", err)
	}
	if got := loadQuiz(t, r, explicit.ID); *got.FailureReason != quiz.FailureNoQuestionsGenerated || got.LLMGenerationStatus != quiz.StageFailed {
		t.Fatalf("explicit reason: reason=%s generation=%s", *got.FailureReason, got.LLMGenerationStatus)
	}
}
