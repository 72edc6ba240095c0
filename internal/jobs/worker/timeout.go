package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TimeoutError is returned when a stage outlives its budget.
type TimeoutError struct {
	QuizID    uuid.UUID
	Operation string
	Budget    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s for quiz %s timed out after %s", e.Operation, e.QuizID, e.Budget)
}

// RunWithTimeout runs fn with a deadline of budget. On expiry it returns a
// *TimeoutError right away; fn keeps running on its cancelled context and its
// result is dropped. A budget <= 0 runs fn inline.
func RunWithTimeout[T any](ctx context.Context, quizID uuid.UUID, operation string, budget time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if budget <= 0 {
		return fn(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type out struct {
		v T
		e error
	}
	ch := make(chan out, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				ch <- out{v: zero, e: errFromRecover(r)}
			}
		}()
		v, e := fn(tctx)
		ch <- out{v: v, e: e}
	}()
	select {
	case o := <-ch:
		return o.v, o.e
	case <-tctx.Done():
		var zero T
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, &TimeoutError{QuizID: quizID, Operation: operation, Budget: budget}
	}
}
