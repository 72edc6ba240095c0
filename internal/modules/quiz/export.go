package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	domainagg "github.com/yungbote/quizbridge-backend/internal/domain/aggregates"
	types "github.com/yungbote/quizbridge-backend/internal/domain/quiz"
	"github.com/yungbote/quizbridge-backend/internal/observability"
	"github.com/yungbote/quizbridge-backend/internal/platform/canvas"
	"github.com/yungbote/quizbridge-backend/internal/platform/dbctx"
)

type ExportInput struct {
	QuizID      uuid.UUID
	CanvasToken string
}

// ExportToCanvas publishes the approved questions as one Canvas quiz. Either
// every item lands or the remote quiz is deleted and the quiz fails.
func (s *Stages) ExportToCanvas(ctx context.Context, in ExportInput) (Outcome, error) {
	ctx, span := observability.StartSpan(ctx, "quiz.export", attribute.String("quiz_id", in.QuizID.String()))
	start := time.Now()
	out, err := s.exportToCanvas(ctx, in)
	s.observe(types.StageExport, out, err, start)
	observability.EndSpan(span, err)
	return out, err
}

func (s *Stages) exportToCanvas(ctx context.Context, in ExportInput) (Outcome, error) {
	const stage = types.StageExport
	log := s.log.With("quiz_id", in.QuizID.String(), "stage", string(stage))

	res, err := s.deps.Lifecycle.ReserveStage(ctx, domainagg.ReserveStageInput{
		QuizID:        in.QuizID,
		Stage:         stage,
		RequireStatus: []types.Status{types.StatusReadyForReview, types.StatusReadyForReviewPartial},
		RequireIdle:   []types.Stage{types.StageGeneration},
	})
	if err != nil {
		return Outcome{}, err
	}
	if !res.Reserved {
		log.Info("export skipped", "reason", res.SkipReason)
		out := skipOutcome(stage, res)
		if res.Snapshot.CanvasQuizID != nil {
			out.CanvasQuizID = *res.Snapshot.CanvasQuizID
		}
		return out, nil
	}
	q := res.Snapshot
	s.publish(ctx, &q, stage, q.Status, nil)

	approved, err := s.deps.Questions.ListApproved(dbctx.Context{Ctx: ctx}, q.ID)
	if err != nil {
		return s.fail(ctx, &q, stage, types.FailureCanvasExportError, fmt.Errorf("load approved questions: %w", err))
	}
	if len(approved) == 0 {
		return s.fail(ctx, &q, stage, types.FailureCanvasExportError, errNoApproved)
	}

	items, points, err := s.formatItems(approved)
	if err != nil {
		return s.fail(ctx, &q, stage, types.FailureValidationError, err)
	}

	canvasQuizID, err := s.deps.Creator.CreateQuiz(ctx, in.CanvasToken, q.CanvasCourseID, q.Title, points)
	if err != nil {
		return s.fail(ctx, &q, stage, types.FailureCanvasExportError, fmt.Errorf("create canvas quiz: %w", err))
	}
	log = log.With("canvas_quiz_id", canvasQuizID)

	results, exportErr := s.deps.Exporter.ExportItems(ctx, in.CanvasToken, q.CanvasCourseID, canvasQuizID, items)
	itemIDs, failures := collectItemResults(results)
	if exportErr != nil || len(failures) > 0 || len(itemIDs) != len(items) {
		perr := &ExportPartialFailure{
			QuizID:       q.ID,
			CanvasQuizID: canvasQuizID,
			Total:        len(items),
			Succeeded:    len(itemIDs),
			Failures:     failures,
			Err:          exportErr,
		}
		log.Warn("canvas export incomplete; rolling back", "succeeded", perr.Succeeded, "total", perr.Total)
		s.deleteRemote(ctx, in.CanvasToken, &q, canvasQuizID)
		return s.fail(ctx, &q, stage, types.FailureCanvasExportError, perr)
	}

	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	tr, err := s.deps.Lifecycle.RecordExport(recCtx, domainagg.RecordExportInput{
		QuizID:       q.ID,
		CanvasQuizID: canvasQuizID,
		ItemIDs:      itemIDs,
		ExportedAt:   time.Now().UTC(),
	})
	if err != nil {
		log.Error("recording export failed; rolling back", "error", err)
		s.deleteRemote(recCtx, in.CanvasToken, &q, canvasQuizID)
		if _, ferr := s.fail(recCtx, &q, stage, types.FailureCanvasExportError, err); ferr != nil {
			log.Error("marking export failed also failed", "error", ferr)
		}
		return Outcome{}, err
	}
	log.Info("quiz exported", "items", len(items), "points_possible", points)
	s.publish(recCtx, &q, stage, tr.To, nil)

	out := okOutcome(stage, tr.To)
	out.CanvasQuizID = canvasQuizID
	return out, nil
}

// formatItems converts approved questions to Canvas items at positions 1..n
// and sums their points.
func (s *Stages) formatItems(questions []*types.Question) ([]canvas.Item, float64, error) {
	items := make([]canvas.Item, 0, len(questions))
	var points float64
	for i, q := range questions {
		qt, ok := s.deps.Registry.Get(q.QuestionType)
		if !ok {
			return nil, 0, fmt.Errorf("question %s: unknown question type %q", q.ID, q.QuestionType)
		}
		data := json.RawMessage(q.QuestionData)
		payload, err := qt.FormatForCanvas(data, i+1)
		if err != nil {
			return nil, 0, fmt.Errorf("question %s: %w", q.ID, err)
		}
		points += qt.Points(data)
		items = append(items, canvas.Item{Ref: q.ID.String(), Payload: payload})
	}
	return items, points, nil
}

func collectItemResults(results []canvas.ItemResult) (map[uuid.UUID]string, []canvas.ItemResult) {
	ids := make(map[uuid.UUID]string, len(results))
	var failures []canvas.ItemResult
	for _, r := range results {
		id, err := uuid.Parse(r.Ref)
		if !r.Success || err != nil {
			failures = append(failures, r)
			continue
		}
		ids[id] = r.ItemID
	}
	return ids, failures
}

// deleteRemote removes a half-built Canvas quiz. A failed delete is logged
// and otherwise ignored; the quiz is failed either way.
func (s *Stages) deleteRemote(ctx context.Context, token string, q *types.Quiz, canvasQuizID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	ok, err := s.deps.Deleter.DeleteQuiz(ctx, token, q.CanvasCourseID, canvasQuizID)
	switch {
	case err != nil:
		s.log.Error("canvas rollback failed", "quiz_id", q.ID, "canvas_quiz_id", canvasQuizID, "error", err)
	case !ok:
		s.log.Error("canvas rollback refused", "quiz_id", q.ID, "canvas_quiz_id", canvasQuizID)
	default:
		s.log.Info("canvas quiz rolled back", "quiz_id", q.ID, "canvas_quiz_id", canvasQuizID)
	}
}
