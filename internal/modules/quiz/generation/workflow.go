package generation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/quizbridge-backend/internal/domain/quiz"
	"github.com/yungbote/quizbridge-backend/internal/modules/quiz/questiontypes"
	"github.com/yungbote/quizbridge-backend/internal/observability"
	"github.com/yungbote/quizbridge-backend/internal/platform/logger"
)

// minSuccessRate tolerates float rounding on total/target.
const minSuccessRate = 0.99

type Usage struct {
	Model        string
	InputTokens  int
	OutputTokens int
}

func (u Usage) add(o Usage) Usage {
	if u.Model == "" {
		u.Model = o.Model
	}
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	return u
}

type Response struct {
	Text  string
	Usage Usage
}

type Generator interface {
	Generate(ctx context.Context, p Prompt) (Response, error)
}

// Saver persists the accepted items of one batch in a single transaction.
type Saver interface {
	SaveBatch(ctx context.Context, in BatchInput, items []json.RawMessage) error
}

type BatchInput struct {
	QuizID       uuid.UUID
	ModuleID     string
	ModuleName   string
	Content      string
	QuestionType questiontypes.QuestionType
	Difficulty   quiz.Difficulty
	Target       int
	Language     string
	Tone         string
	Model        string
	Temperature  float64
}

func (in BatchInput) Key() string {
	name := ""
	if in.QuestionType != nil {
		name = in.QuestionType.Name()
	}
	return quiz.BatchKey(in.ModuleID, name, in.Difficulty)
}

type BatchStatus string

const (
	BatchSucceeded  BatchStatus = "succeeded"
	BatchIncomplete BatchStatus = "incomplete"
	BatchFailed     BatchStatus = "failed"
)

type BatchOutcome struct {
	BatchKey string
	Status   BatchStatus
	Target   int
	Accepted int
	Saved    int
	// GeneratorErrored is set when any generate call failed outright.
	GeneratorErrored bool
	Retries          int
	Corrections      int
	ValidationFixes  int
	Usage            Usage
	Phases           []Phase
	Err              error
}

func (o BatchOutcome) Succeeded() bool { return o.Status == BatchSucceeded }

type Workflow struct {
	gen    Generator
	saver  Saver
	limits Limits
	log    *logger.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewWorkflow(log *logger.Logger, gen Generator, saver Saver, limits Limits) *Workflow {
	if log == nil {
		log = logger.Nop()
	}
	return &Workflow{
		gen:    gen,
		saver:  saver,
		limits: limits.withDefaults(),
		log:    log.With("component", "GenerationWorkflow"),
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// run is the mutable state of one batch while the workflow drives it.
type run struct {
	in        BatchInput
	state     State
	prompt    Prompt
	lastParse *StructuralParseError
	preserved []json.RawMessage
	seen      map[string]bool
	failed    []*ItemValidationError
	response  Response
	outcome   BatchOutcome
}

// Run drives one batch to completion. It never returns an error: every failure
// is reported in the outcome so sibling batches are unaffected.
func (w *Workflow) Run(ctx context.Context, in BatchInput) BatchOutcome {
	ctx, span := observability.StartSpan(ctx, "generation.batch",
		attribute.String("batch_key", in.Key()),
		attribute.Int("target", in.Target),
	)
	r := &run{
		in:      in,
		state:   State{Phase: PhasePreparePrompt, Target: in.Target},
		seen:    map[string]bool{},
		outcome: BatchOutcome{BatchKey: in.Key(), Target: in.Target},
	}
	log := w.log.With("quiz_id", in.QuizID.String(), "batch_key", r.outcome.BatchKey)

	if in.QuestionType == nil || in.Target <= 0 || w.gen == nil {
		r.outcome.Status = BatchFailed
		r.outcome.Err = errors.New("batch is missing its question type, target or generator")
		w.finish(log, r)
		observability.EndSpan(span, r.outcome.Err)
		return r.outcome
	}

	for r.state.Phase != PhaseDone {
		r.outcome.Phases = append(r.outcome.Phases, r.state.Phase)
		if err := ctx.Err(); err != nil && r.state.Phase != PhaseSaveQuestions {
			r.outcome.Err = err
			r.state.Phase = PhaseSaveQuestions
			continue
		}
		switch r.state.Phase {
		case PhasePreparePrompt:
			r.state.Corrections = 0
			r.state.ValidationCorrections = 0
			r.failed = nil
			r.prompt = generationPrompt(in, in.Target-len(r.preserved))
		case PhaseGenerateBatch:
			w.generate(ctx, log, r)
		case PhaseValidateBatch:
			w.validate(r)
		case PhaseCorrectStructure:
			r.state.Corrections++
			r.outcome.Corrections++
			observability.Current().IncCorrection("structural")
			r.prompt = structuralCorrectionPrompt(in, r.lastParse)
		case PhaseCorrectValidation:
			r.state.ValidationCorrections++
			r.outcome.ValidationFixes++
			observability.Current().IncCorrection("validation")
			r.prompt = validationCorrectionPrompt(in, r.failed)
		case PhaseShouldRetry:
			next := Next(r.state, w.limits)
			if next == PhasePreparePrompt {
				r.state.Retries++
				r.outcome.Retries = r.state.Retries
				log.Debug("batch under target; retrying",
					"accepted", len(r.preserved), "target", in.Target, "retry", r.state.Retries)
				if err := w.sleep(ctx, RetryDelay(w.limits, r.state.Retries)); err != nil {
					r.outcome.Err = err
					next = PhaseSaveQuestions
				}
			}
			r.state.Phase = next
			continue
		case PhaseSaveQuestions:
			w.save(ctx, log, r)
		}
		r.state.Phase = Next(r.state, w.limits)
	}

	w.finish(log, r)
	var spanErr error
	if !r.outcome.Succeeded() {
		spanErr = r.outcome.Err
	}
	observability.EndSpan(span, spanErr)
	return r.outcome
}

func (w *Workflow) generate(ctx context.Context, log *logger.Logger, r *run) {
	r.state.GeneratorError = false
	resp, err := w.gen.Generate(ctx, r.prompt)
	r.outcome.Usage = r.outcome.Usage.add(resp.Usage)
	if err != nil {
		r.state.GeneratorError = true
		r.outcome.GeneratorErrored = true
		r.outcome.Err = err
		log.Warn("generator call failed", "error", err)
		return
	}
	r.response = resp
}

// validate parses the last response and sorts its items into accepted and failed.
// Accepted items join the preserved set and are never regenerated.
func (w *Workflow) validate(r *run) {
	r.state.ParsingError = false
	r.state.ValidationError = false
	items, err := parseItems(r.response.Text, w.limits.CorrectionSnippetChars)
	if err != nil {
		var perr *StructuralParseError
		if !errors.As(err, &perr) {
			perr = &StructuralParseError{Message: err.Error()}
		}
		r.lastParse = perr
		r.state.ParsingError = true
		return
	}
	var failed []*ItemValidationError
	for i, raw := range items {
		data, verr := r.in.QuestionType.Validate(raw)
		if verr != nil {
			failed = append(failed, &ItemValidationError{Index: i, Payload: raw, Err: verr})
			continue
		}
		key := string(data)
		if r.seen[key] {
			continue
		}
		r.seen[key] = true
		r.preserved = append(r.preserved, data)
	}
	r.failed = failed
	r.state.ValidationError = len(failed) > 0
	r.state.Total = len(r.preserved)
}

func (w *Workflow) save(ctx context.Context, log *logger.Logger, r *run) {
	items := r.preserved
	if len(items) > r.in.Target {
		items = items[:r.in.Target]
	}
	r.outcome.Accepted = len(items)
	rate := float64(len(items)) / float64(r.in.Target)
	if rate < minSuccessRate {
		r.outcome.Status = BatchIncomplete
		if len(items) == 0 && r.outcome.Err != nil {
			r.outcome.Status = BatchFailed
		}
		log.Warn("batch incomplete; not persisting",
			"accepted", len(items), "target", r.in.Target, "success_rate", rate)
		return
	}
	if w.saver != nil {
		if err := w.saver.SaveBatch(ctx, r.in, items); err != nil {
			r.outcome.Status = BatchFailed
			r.outcome.Err = err
			log.Error("batch save failed", "error", err)
			return
		}
	}
	r.outcome.Saved = len(items)
	r.outcome.Status = BatchSucceeded
	r.outcome.Err = nil
}

func (w *Workflow) finish(log *logger.Logger, r *run) {
	typeName := ""
	if r.in.QuestionType != nil {
		typeName = r.in.QuestionType.Name()
	}
	observability.Current().IncBatchOutcome(typeName, string(r.outcome.Status))
	log.Info("batch finished",
		"status", r.outcome.Status,
		"accepted", r.outcome.Accepted,
		"target", r.outcome.Target,
		"retries", r.outcome.Retries,
		"corrections", r.outcome.Corrections,
		"validation_fixes", r.outcome.ValidationFixes,
	)
}
