// Package worker runs quiz stages in the background and guarantees that an
// escaped error, timeout or panic ends as a recorded stage failure.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	domainagg "github.com/yungbote/quizbridge-backend/internal/domain/aggregates"
	"github.com/yungbote/quizbridge-backend/internal/domain/quiz"
	"github.com/yungbote/quizbridge-backend/internal/platform/logger"
)

type StageFailer interface {
	FailStage(ctx context.Context, in domainagg.FailStageInput) (domainagg.FailStageResult, error)
}

// ReasonCarrier lets an error pick the failure reason the backstop records.
type ReasonCarrier interface {
	FailureReason() quiz.FailureReason
}

type Task struct {
	QuizID uuid.UUID
	Stage  quiz.Stage
	Budget time.Duration
	Run    func(ctx context.Context) error
}

type Runner struct {
	ctx    context.Context
	log    *logger.Logger
	failer StageFailer
	wg     sync.WaitGroup

	failTimeout time.Duration
}

// NewRunner builds a runner whose tasks live under ctx rather than the
// request that scheduled them.
func NewRunner(ctx context.Context, baseLog *logger.Logger, failer StageFailer) *Runner {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Runner{
		ctx:         ctx,
		log:         baseLog.With("component", "StageRunner"),
		failer:      failer,
		failTimeout: 30 * time.Second,
	}
}

// Go schedules task and returns its correlation id.
func (r *Runner) Go(task Task) string {
	correlationID := uuid.NewString()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_ = r.run(r.ctx, correlationID, task)
	}()
	return correlationID
}

// Run executes task inline with the same guarantees as Go.
func (r *Runner) Run(ctx context.Context, task Task) error {
	return r.run(ctx, uuid.NewString(), task)
}

// Wait blocks until every scheduled task has returned.
func (r *Runner) Wait() { r.wg.Wait() }

func (r *Runner) run(ctx context.Context, correlationID string, task Task) (err error) {
	log := r.log.With(
		"correlation_id", correlationID,
		"quiz_id", task.QuizID.String(),
		"stage", string(task.Stage),
	)
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("stage task panic", "panic", rec)
			err = errFromRecover(rec)
		}
		if err != nil {
			r.backstop(log, task, err)
			return
		}
		log.Debug("stage task finished", "duration", time.Since(start).String())
	}()

	if task.Run == nil {
		return fmt.Errorf("stage %q: Run is nil", task.Stage)
	}
	_, err = RunWithTimeout(ctx, task.QuizID, string(task.Stage), task.Budget, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, task.Run(ctx)
	})
	return err
}

// backstop records the terminal failure. It uses a fresh context so a
// cancelled or expired task context cannot prevent the write.
func (r *Runner) backstop(log *logger.Logger, task Task, cause error) {
	reason := quiz.FailureReasonForStage(task.Stage)
	var rc ReasonCarrier
	if errors.As(cause, &rc) {
		reason = rc.FailureReason()
	}
	var te *TimeoutError
	log.Error("stage task failed", "error", cause, "timeout", errors.As(cause, &te), "reason", reason)
	if r.failer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), r.failTimeout)
	defer cancel()
	res, err := r.failer.FailStage(ctx, domainagg.FailStageInput{
		QuizID: task.QuizID,
		Stage:  task.Stage,
		Reason: reason,
		Cause:  cause.Error(),
	})
	if err != nil {
		log.Error("backstop failure write failed; quiz may stay in processing", "error", err)
		return
	}
	if !res.Applied {
		log.Warn("backstop skipped; quiz already terminal", "status", res.From)
	}
}

func errFromRecover(v any) error { return &panicError{Val: v} }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
