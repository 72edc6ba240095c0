package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	domainagg "github.com/yungbote/quizbridge-backend/internal/domain/aggregates"
	types "github.com/yungbote/quizbridge-backend/internal/domain/quiz"
	"github.com/yungbote/quizbridge-backend/internal/modules/quiz/generation"
	"github.com/yungbote/quizbridge-backend/internal/observability"
)

type GenerationInput struct {
	QuizID uuid.UUID
}

// GenerateQuestions runs every batch that has not already succeeded and
// derives the quiz status from the merged results.
func (s *Stages) GenerateQuestions(ctx context.Context, in GenerationInput) (Outcome, error) {
	ctx, span := observability.StartSpan(ctx, "quiz.generation", attribute.String("quiz_id", in.QuizID.String()))
	start := time.Now()
	out, err := s.generateQuestions(ctx, in)
	s.observe(types.StageGeneration, out, err, start)
	observability.EndSpan(span, err)
	return out, err
}

func (s *Stages) generateQuestions(ctx context.Context, in GenerationInput) (Outcome, error) {
	const stage = types.StageGeneration
	log := s.log.With("quiz_id", in.QuizID.String(), "stage", string(stage))

	res, err := s.deps.Lifecycle.ReserveStage(ctx, domainagg.ReserveStageInput{
		QuizID:           in.QuizID,
		Stage:            stage,
		RequireStatus:    []types.Status{types.StatusExtractingContent, types.StatusReadyForReviewPartial},
		RequireCompleted: []types.Stage{types.StageExtraction},
		RequireIdle:      []types.Stage{types.StageExport},
	})
	if err != nil {
		return Outcome{}, err
	}
	if !res.Reserved {
		log.Info("generation skipped", "reason", res.SkipReason)
		return skipOutcome(stage, res), nil
	}
	q := res.Snapshot
	s.publish(ctx, &q, stage, q.Status, nil)

	batches, expected, err := s.planBatches(&q)
	if err != nil {
		return s.fail(ctx, &q, stage, types.FailureValidationError, err)
	}
	log.Info("generation planned", "batches", len(batches), "expected", len(expected))

	outcomes := s.runBatches(ctx, batches)

	rec := domainagg.RecordGenerationInput{QuizID: q.ID, ExpectedKeys: expected}
	for _, o := range outcomes {
		if o.Succeeded() {
			rec.Succeeded = append(rec.Succeeded, o.BatchKey)
			continue
		}
		rec.Failed = append(rec.Failed, o.BatchKey)
		if o.GeneratorErrored {
			rec.GeneratorErrored = true
		}
	}
	// Results are recorded even when the caller's context is gone so saved
	// batches are never orphaned behind a processing flag.
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	gen, err := s.deps.Lifecycle.RecordGeneration(recCtx, rec)
	if err != nil {
		return Outcome{}, err
	}
	log.Info("generation recorded",
		"status", gen.Status,
		"succeeded", len(rec.Succeeded),
		"failed", len(rec.Failed),
	)
	s.publish(recCtx, &q, stage, gen.Status, gen.Reason)

	out := okOutcome(stage, gen.Status)
	if gen.Status == types.StatusFailed {
		out = failOutcome(stage, *gen.Reason, fmt.Errorf("no batch produced questions"))
	}
	out.Batches = outcomes
	return out, nil
}

// planBatches expands the selected modules into batch inputs, skipping keys a
// previous run already saved.
func (s *Stages) planBatches(q *types.Quiz) ([]generation.BatchInput, []string, error) {
	modules, err := q.Modules()
	if err != nil {
		return nil, nil, err
	}
	content, err := q.Content()
	if err != nil {
		return nil, nil, err
	}
	meta, err := q.Metadata()
	if err != nil {
		return nil, nil, err
	}

	ids := make([]string, 0, len(modules))
	for id := range modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []generation.BatchInput
	for _, id := range ids {
		m := modules[id]
		text := moduleText(content[id])
		for _, b := range m.QuestionBatches {
			qt, ok := s.deps.Registry.Get(b.QuestionType)
			if !ok {
				return nil, nil, fmt.Errorf("module %s: unknown question type %q", id, b.QuestionType)
			}
			in := generation.BatchInput{
				QuizID:       q.ID,
				ModuleID:     id,
				ModuleName:   m.Name,
				Content:      text,
				QuestionType: qt,
				Difficulty:   b.Difficulty,
				Target:       b.Count,
				Language:     q.Language,
				Tone:         q.Tone,
				Model:        q.LLMModel,
				Temperature:  q.LLMTemperature,
			}
			if meta.Succeeded(in.Key()) {
				continue
			}
			out = append(out, in)
		}
	}
	return out, types.ExpectedBatchKeys(modules), nil
}

func moduleText(entries []types.ContentEntry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		text := strings.TrimSpace(e.Content)
		if text == "" {
			continue
		}
		if e.Title != "" {
			text = "## " + e.Title + "\n\n" + text
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n")
}

// runBatches runs the workflow for every batch with bounded concurrency. A
// batch that panics is reported as failed and the rest carry on.
func (s *Stages) runBatches(ctx context.Context, batches []generation.BatchInput) []generation.BatchOutcome {
	wf := generation.NewWorkflow(s.log, s.deps.Generator, batchSaver{agg: s.deps.Lifecycle}, s.deps.Limits)
	outcomes := make([]generation.BatchOutcome, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.deps.Concurrency)
	for i := range batches {
		i := i
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("generation batch panicked", "batch_key", batches[i].Key(), "panic", r)
					outcomes[i] = generation.BatchOutcome{
						BatchKey: batches[i].Key(),
						Status:   generation.BatchFailed,
						Target:   batches[i].Target,
						Err:      fmt.Errorf("batch panic: %v", r),
					}
				}
			}()
			outcomes[i] = wf.Run(gctx, batches[i])
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

type batchSaver struct {
	agg domainagg.QuizLifecycleAggregate
}

func (b batchSaver) SaveBatch(ctx context.Context, in generation.BatchInput, items []json.RawMessage) error {
	_, err := b.agg.SaveBatch(ctx, domainagg.SaveBatchInput{
		QuizID:       in.QuizID,
		ModuleID:     in.ModuleID,
		QuestionType: in.QuestionType.Name(),
		Difficulty:   in.Difficulty,
		Items:        items,
	})
	return err
}
