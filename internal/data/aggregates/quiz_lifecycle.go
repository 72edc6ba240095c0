package aggregates

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/quizbridge-backend/internal/data/repos"
	domainagg "github.com/yungbote/quizbridge-backend/internal/domain/aggregates"
	"github.com/yungbote/quizbridge-backend/internal/domain/quiz"
	"github.com/yungbote/quizbridge-backend/internal/platform/dbctx"
)

type QuizLifecycleAggregateDeps struct {
	Base BaseDeps

	Quizzes   repos.QuizRepo
	Questions repos.QuestionRepo
}

type quizLifecycleAggregate struct {
	deps QuizLifecycleAggregateDeps
}

func NewQuizLifecycleAggregate(deps QuizLifecycleAggregateDeps) domainagg.QuizLifecycleAggregate {
	deps.Base = deps.Base.withDefaults()
	return &quizLifecycleAggregate{deps: deps}
}

func (a *quizLifecycleAggregate) Contract() domainagg.Contract {
	return domainagg.QuizLifecycleAggregateContract
}

func (a *quizLifecycleAggregate) configured(op string) error {
	if a.deps.Quizzes == nil || a.deps.Questions == nil {
		return domainagg.NewError(domainagg.CodeInternal, op, "quiz lifecycle repos not configured", nil)
	}
	return nil
}

func (a *quizLifecycleAggregate) lock(dbc dbctx.Context, op string, id uuid.UUID) (*quiz.Quiz, error) {
	q, err := a.deps.Quizzes.LockByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if q == nil || q.ID == uuid.Nil {
		return nil, domainagg.NewError(domainagg.CodeNotFound, op, fmt.Sprintf("quiz not found: %s", id), nil)
	}
	return q, nil
}

func (a *quizLifecycleAggregate) ReserveStage(ctx context.Context, in domainagg.ReserveStageInput) (domainagg.ReserveStageResult, error) {
	const op = "Quiz.Lifecycle.ReserveStage"
	var out domainagg.ReserveStageResult
	if in.QuizID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing quiz_id", nil)
	}
	column := in.Stage.Column()
	if column == "" {
		return out, domainagg.NewError(domainagg.CodeValidation, op, fmt.Sprintf("unknown stage %q", in.Stage), nil)
	}
	if err := a.configured(op); err != nil {
		return out, err
	}

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		out = domainagg.ReserveStageResult{}
		q, err := a.lock(dbc, op, in.QuizID)
		if err != nil {
			return err
		}
		out.Snapshot = *q

		switch q.StageStatus(in.Stage) {
		case quiz.StageProcessing:
			out.SkipReason = domainagg.SkipInProgress
			return nil
		case quiz.StageCompleted:
			out.SkipReason = domainagg.SkipCompleted
			if in.Stage == quiz.StageExport && q.CanvasQuizID != nil && *q.CanvasQuizID != "" {
				out.SkipReason = domainagg.SkipAlreadyExported
			}
			return nil
		}
		if q.Status.Terminal() {
			out.SkipReason = domainagg.SkipTerminal
			return nil
		}
		if len(in.RequireStatus) > 0 && !containsStatus(in.RequireStatus, q.Status) {
			out.SkipReason = domainagg.SkipStatusNotReady
			return nil
		}
		for _, prev := range in.RequireCompleted {
			if q.StageStatus(prev) != quiz.StageCompleted {
				out.SkipReason = domainagg.SkipStatusNotReady
				return nil
			}
		}
		for _, other := range in.RequireIdle {
			if q.StageStatus(other) == quiz.StageProcessing {
				out.SkipReason = domainagg.SkipStageBusy
				return nil
			}
		}

		now := time.Now().UTC()
		updates := map[string]any{
			column:       string(quiz.StageProcessing),
			"updated_at": now,
		}
		enter := q.Status
		if in.EnterStatus != nil && *in.EnterStatus != q.Status {
			if !quiz.CanTransition(q.Status, *in.EnterStatus) {
				return InvariantError(fmt.Sprintf("cannot enter %s from %s", *in.EnterStatus, q.Status))
			}
			enter = *in.EnterStatus
			updates["status"] = string(enter)
		}
		ok, err := a.deps.Base.CASGuard.UpdateWhereIn(dbc, q.TableName(), q.ID, column,
			[]string{string(quiz.StagePending), string(quiz.StageFailed)}, updates)
		if err != nil {
			return err
		}
		if !ok {
			out.SkipReason = domainagg.SkipInProgress
			return nil
		}

		setStageStatus(&out.Snapshot, in.Stage, quiz.StageProcessing)
		out.Snapshot.Status = enter
		out.Snapshot.UpdatedAt = now
		out.Reserved = true
		return nil
	})
	if err != nil {
		return domainagg.ReserveStageResult{}, err
	}
	return out, nil
}

func (a *quizLifecycleAggregate) TransitionStatus(ctx context.Context, in domainagg.TransitionStatusInput) (domainagg.TransitionStatusResult, error) {
	const op = "Quiz.Lifecycle.TransitionStatus"
	var out domainagg.TransitionStatusResult
	if in.QuizID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing quiz_id", nil)
	}
	if err := a.configured(op); err != nil {
		return out, err
	}
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		q, err := a.lock(dbc, op, in.QuizID)
		if err != nil {
			return err
		}
		out, err = a.transitionInTx(dbc, q, in.To, in.Reason, in.Fields)
		return err
	})
	if err != nil {
		return domainagg.TransitionStatusResult{}, err
	}
	return out, nil
}

// transitionInTx is the single place a quiz status is written. It enforces the
// lifecycle table and the failure-reason rule, then merges fields into the same
// UPDATE.
func (a *quizLifecycleAggregate) transitionInTx(dbc dbctx.Context, q *quiz.Quiz, to quiz.Status, reason *quiz.FailureReason, fields map[string]any) (domainagg.TransitionStatusResult, error) {
	var out domainagg.TransitionStatusResult
	if !to.Valid() {
		return out, ValidationError(fmt.Sprintf("unknown status %q", to))
	}
	if to == quiz.StatusFailed && (reason == nil || *reason == "") {
		return out, ValidationError("failure reason required for failed status")
	}
	if to != quiz.StatusFailed && reason != nil {
		return out, ValidationError("failure reason only allowed with failed status")
	}
	if !quiz.CanTransition(q.Status, to) {
		return out, InvariantError(fmt.Sprintf("cannot transition quiz from %s to %s", q.Status, to))
	}

	now := time.Now().UTC()
	updates := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		switch k {
		case "status", "failure_reason", "id", "owner_user_id":
			return out, ValidationError(fmt.Sprintf("field %q cannot be merged into a status write", k))
		}
		updates[k] = v
	}
	updates["status"] = string(to)
	updates["updated_at"] = now
	if reason != nil {
		updates["failure_reason"] = string(*reason)
	} else {
		updates["failure_reason"] = nil
	}
	if err := a.deps.Quizzes.UpdateFields(dbc, q.ID, updates); err != nil {
		return out, err
	}
	out = domainagg.TransitionStatusResult{
		QuizID:    q.ID,
		From:      q.Status,
		To:        to,
		Reason:    reason,
		UpdatedAt: now,
	}
	q.Status = to
	q.FailureReason = reason
	return out, nil
}

func (a *quizLifecycleAggregate) SaveBatch(ctx context.Context, in domainagg.SaveBatchInput) (domainagg.SaveBatchResult, error) {
	const op = "Quiz.Lifecycle.SaveBatch"
	var out domainagg.SaveBatchResult
	if in.QuizID == uuid.Nil || in.ModuleID == "" || in.QuestionType == "" {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "quiz_id, module_id and question_type are required", nil)
	}
	if len(in.Items) == 0 {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "no items to save", nil)
	}
	if err := a.configured(op); err != nil {
		return out, err
	}
	key := quiz.BatchKey(in.ModuleID, in.QuestionType, in.Difficulty)
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		q, err := a.lock(dbc, op, in.QuizID)
		if err != nil {
			return err
		}
		if q.LLMGenerationStatus != quiz.StageProcessing {
			return PreconditionError("generation is not reserved for this quiz")
		}
		rows := make([]*quiz.Question, 0, len(in.Items))
		for i, item := range in.Items {
			rows = append(rows, &quiz.Question{
				QuizID:       q.ID,
				ModuleID:     in.ModuleID,
				BatchKey:     key,
				QuestionType: in.QuestionType,
				Difficulty:   in.Difficulty,
				Position:     i,
				QuestionData: datatypes.JSON(item),
			})
		}
		replaced, err := a.deps.Questions.ReplaceBatch(dbc, q.ID, key, rows)
		if err != nil {
			return err
		}
		out = domainagg.SaveBatchResult{BatchKey: key, Saved: len(rows), Replaced: int(replaced)}
		return nil
	})
	if err != nil {
		return domainagg.SaveBatchResult{}, err
	}
	return out, nil
}

func (a *quizLifecycleAggregate) RecordGeneration(ctx context.Context, in domainagg.RecordGenerationInput) (domainagg.RecordGenerationResult, error) {
	const op = "Quiz.Lifecycle.RecordGeneration"
	var out domainagg.RecordGenerationResult
	if in.QuizID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing quiz_id", nil)
	}
	if err := a.configured(op); err != nil {
		return out, err
	}
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		q, err := a.lock(dbc, op, in.QuizID)
		if err != nil {
			return err
		}
		if q.LLMGenerationStatus != quiz.StageProcessing {
			return PreconditionError("generation is not reserved for this quiz")
		}
		meta, err := q.Metadata()
		if err != nil {
			return InvariantError(err.Error())
		}
		merged := meta.Merge(in.Succeeded, in.Failed)

		expected := in.ExpectedKeys
		if len(expected) == 0 {
			modules, err := q.Modules()
			if err != nil {
				return InvariantError(err.Error())
			}
			expected = quiz.ExpectedBatchKeys(modules)
		}
		allDone := len(expected) > 0
		for _, k := range expected {
			if !merged.Succeeded(k) {
				allDone = false
				break
			}
		}

		var (
			to          quiz.Status
			reason      *quiz.FailureReason
			stageStatus quiz.StageStatus
		)
		switch {
		case len(merged.SuccessfulBatches) == 0:
			r := quiz.FailureNoQuestionsGenerated
			if in.GeneratorErrored {
				r = quiz.FailureLLMGenerationError
			}
			to, reason, stageStatus = quiz.StatusFailed, &r, quiz.StageFailed
		case allDone:
			to, stageStatus = quiz.StatusReadyForReview, quiz.StageCompleted
		default:
			// failed lets a manual re-trigger reserve generation again.
			to, stageStatus = quiz.StatusReadyForReviewPartial, quiz.StageFailed
		}

		metaJSON, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		if _, err := a.transitionInTx(dbc, q, to, reason, map[string]any{
			"generation_metadata":   datatypes.JSON(metaJSON),
			"llm_generation_status": string(stageStatus),
		}); err != nil {
			return err
		}
		out = domainagg.RecordGenerationResult{Status: to, Reason: reason, Metadata: merged}
		return nil
	})
	if err != nil {
		return domainagg.RecordGenerationResult{}, err
	}
	return out, nil
}

func (a *quizLifecycleAggregate) RecordExport(ctx context.Context, in domainagg.RecordExportInput) (domainagg.TransitionStatusResult, error) {
	const op = "Quiz.Lifecycle.RecordExport"
	var out domainagg.TransitionStatusResult
	if in.QuizID == uuid.Nil || in.CanvasQuizID == "" {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "quiz_id and canvas_quiz_id are required", nil)
	}
	if err := a.configured(op); err != nil {
		return out, err
	}
	exportedAt := in.ExportedAt.UTC()
	if in.ExportedAt.IsZero() {
		exportedAt = time.Now().UTC()
	}
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		q, err := a.lock(dbc, op, in.QuizID)
		if err != nil {
			return err
		}
		if q.ExportStatus != quiz.StageProcessing {
			return PreconditionError("export is not reserved for this quiz")
		}
		if err := a.deps.Questions.SetCanvasItemIDs(dbc, q.ID, in.ItemIDs); err != nil {
			return err
		}
		out, err = a.transitionInTx(dbc, q, quiz.StatusPublished, nil, map[string]any{
			"canvas_quiz_id": in.CanvasQuizID,
			"exported_at":    exportedAt,
			"export_status":  string(quiz.StageCompleted),
		})
		return err
	})
	if err != nil {
		return domainagg.TransitionStatusResult{}, err
	}
	return out, nil
}

func (a *quizLifecycleAggregate) FailStage(ctx context.Context, in domainagg.FailStageInput) (domainagg.FailStageResult, error) {
	const op = "Quiz.Lifecycle.FailStage"
	var out domainagg.FailStageResult
	if in.QuizID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing quiz_id", nil)
	}
	if err := a.configured(op); err != nil {
		return out, err
	}
	var reason quiz.FailureReason
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		out = domainagg.FailStageResult{Stage: in.Stage}
		reason = in.Reason
		if reason == "" {
			reason = quiz.FailureReasonForStage(in.Stage)
		}
		q, err := a.lock(dbc, op, in.QuizID)
		if err != nil {
			return err
		}
		out.From = q.Status
		if q.Status.Terminal() {
			return nil
		}
		if active := q.ActiveStage(in.Stage); active != in.Stage {
			if reason == quiz.FailureReasonForStage(in.Stage) {
				reason = quiz.FailureReasonForStage(active)
			}
			out.Stage = active
		}
		fields := map[string]any{}
		if col := out.Stage.Column(); col != "" {
			fields[col] = string(quiz.StageFailed)
		}
		if _, err := a.transitionInTx(dbc, q, quiz.StatusFailed, &reason, fields); err != nil {
			return err
		}
		out.Applied = true
		return nil
	})
	if err != nil {
		return domainagg.FailStageResult{}, err
	}
	if out.Applied {
		a.deps.Base.Log.Warn("quiz stage failed", "quiz_id", in.QuizID, "stage", out.Stage, "reason", reason, "cause", in.Cause)
	}
	return out, nil
}

func containsStatus(list []quiz.Status, s quiz.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func setStageStatus(q *quiz.Quiz, stage quiz.Stage, s quiz.StageStatus) {
	switch stage {
	case quiz.StageExtraction:
		q.ContentExtractionStatus = s
	case quiz.StageGeneration:
		q.LLMGenerationStatus = s
	case quiz.StageExport:
		q.ExportStatus = s
	}
}
