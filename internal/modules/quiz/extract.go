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
	"gorm.io/datatypes"

	domainagg "github.com/yungbote/quizbridge-backend/internal/domain/aggregates"
	types "github.com/yungbote/quizbridge-backend/internal/domain/quiz"
	"github.com/yungbote/quizbridge-backend/internal/jobs/worker"
	"github.com/yungbote/quizbridge-backend/internal/observability"
)

type ExtractionInput struct {
	QuizID      uuid.UUID
	CanvasToken string
}

// ExtractContent pulls module content, stores it and then runs generation in
// the same call.
func (s *Stages) ExtractContent(ctx context.Context, in ExtractionInput) (Outcome, error) {
	ctx, span := observability.StartSpan(ctx, "quiz.extraction", attribute.String("quiz_id", in.QuizID.String()))
	start := time.Now()
	out, err := s.extractContent(ctx, in)
	s.observe(types.StageExtraction, out, err, start)
	observability.EndSpan(span, err)
	return out, err
}

func (s *Stages) extractContent(ctx context.Context, in ExtractionInput) (Outcome, error) {
	const stage = types.StageExtraction
	log := s.log.With("quiz_id", in.QuizID.String(), "stage", string(stage))

	enter := types.StatusExtractingContent
	res, err := s.deps.Lifecycle.ReserveStage(ctx, domainagg.ReserveStageInput{
		QuizID:        in.QuizID,
		Stage:         stage,
		RequireStatus: []types.Status{types.StatusCreated},
		EnterStatus:   &enter,
	})
	if err != nil {
		return Outcome{}, err
	}
	if !res.Reserved {
		log.Info("extraction skipped", "reason", res.SkipReason)
		return skipOutcome(stage, res), nil
	}
	q := res.Snapshot
	s.publish(ctx, &q, stage, q.Status, nil)

	modules, err := q.Modules()
	if err != nil {
		return s.fail(ctx, &q, stage, types.FailureValidationError, err)
	}
	content, err := s.collectContent(ctx, in.CanvasToken, &q, modules)
	if err != nil {
		return s.fail(ctx, &q, stage, types.FailureContentExtractionError, err)
	}
	summary := s.deps.Summarizer.Summarize(content)
	log.Info("content extracted",
		"modules_processed", summary.ModulesProcessed,
		"total_pages", summary.TotalPages,
		"total_word_count", summary.TotalWordCount,
	)
	if summary.TotalWordCount == 0 {
		return s.fail(ctx, &q, stage, types.FailureNoContentFound, errNoContent)
	}

	cleaned := make(map[string]types.SelectedModule, len(modules))
	for id, m := range modules {
		cleaned[id] = m.Cleaned()
	}
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return Outcome{}, err
	}
	modulesJSON, err := json.Marshal(cleaned)
	if err != nil {
		return Outcome{}, err
	}
	tr, err := s.deps.Lifecycle.TransitionStatus(ctx, domainagg.TransitionStatusInput{
		QuizID: q.ID,
		To:     types.StatusExtractingContent,
		Fields: map[string]any{
			"extracted_content":         datatypes.JSON(contentJSON),
			"selected_modules":          datatypes.JSON(modulesJSON),
			"content_extracted_at":      time.Now().UTC(),
			"content_extraction_status": string(types.StageCompleted),
		},
	})
	if err != nil {
		return Outcome{}, err
	}

	out := okOutcome(stage, tr.To)
	out.Summary = &summary

	next, nextErr := s.autoGenerate(ctx, q.ID)
	out.Next = &next
	if nextErr != nil {
		out.NextErr = nextErr
		log.Error("auto-triggered generation failed; rolling back to extracting_content", "error", nextErr)
		s.rollbackGeneration(ctx, &q)
	}
	return out, nil
}

// collectContent merges manual module text with content fetched from Canvas
// into one map keyed by module id.
func (s *Stages) collectContent(ctx context.Context, token string, q *types.Quiz, modules map[string]types.SelectedModule) (types.ExtractedContent, error) {
	content := types.ExtractedContent{}
	ids := make([]string, 0, len(modules))
	for id := range modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var remote []string
	for _, id := range ids {
		m := modules[id]
		if m.SourceType != types.SourceManual {
			remote = append(remote, id)
			continue
		}
		text := strings.TrimSpace(m.Content)
		if text == "" {
			content[id] = []types.ContentEntry{}
			continue
		}
		wc := m.WordCount
		if wc <= 0 {
			wc = len(strings.Fields(text))
		}
		content[id] = []types.ContentEntry{{
			Content:    text,
			WordCount:  wc,
			Title:      m.Name,
			SourceType: types.SourceManual,
		}}
	}
	if len(remote) == 0 {
		return content, nil
	}
	if s.deps.Extractor == nil {
		return nil, errNoExtractor
	}
	fetched, err := s.deps.Extractor.ExtractContent(ctx, token, q.CanvasCourseID, remote)
	if err != nil {
		return nil, fmt.Errorf("extract canvas modules: %w", err)
	}
	for _, id := range remote {
		entries := fetched[id]
		if entries == nil {
			entries = []types.ContentEntry{}
		}
		content[id] = entries
	}
	return content, nil
}

// autoGenerate runs generation under its own budget and turns a panic into
// an error so the caller can roll back.
func (s *Stages) autoGenerate(ctx context.Context, quizID uuid.UUID) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generation panic: %v", r)
		}
	}()
	return worker.RunWithTimeout(ctx, quizID, string(types.StageGeneration), s.deps.Timeouts.Generation,
		func(ctx context.Context) (Outcome, error) {
			return s.GenerateQuestions(ctx, GenerationInput{QuizID: quizID})
		})
}

// rollbackGeneration puts the quiz back to extracting_content with the
// generation flag cleared, keeping the extracted content, so generation can be
// retried on its own.
func (s *Stages) rollbackGeneration(ctx context.Context, q *types.Quiz) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	_, err := s.deps.Lifecycle.TransitionStatus(ctx, domainagg.TransitionStatusInput{
		QuizID: q.ID,
		To:     types.StatusExtractingContent,
		Fields: map[string]any{"llm_generation_status": string(types.StagePending)},
	})
	if err != nil {
		s.log.Error("generation rollback failed", "quiz_id", q.ID, "error", err)
		return
	}
	s.publish(ctx, q, types.StageGeneration, types.StatusExtractingContent, nil)
}
