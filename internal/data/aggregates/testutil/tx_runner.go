package testutil

import (
	"context"
	"sync"

	"github.com/yungbote/quizbridge-backend/internal/data/aggregates"
	"github.com/yungbote/quizbridge-backend/internal/platform/dbctx"
)

// InjectedTxRunner is a test helper for aggregate integration tests.
// It supports rollback/failure injection with or without a real DB: when Inner
// is set the body runs inside Inner's transaction and an injected commit
// failure rolls that transaction back.
type InjectedTxRunner struct {
	mu sync.Mutex

	Inner aggregates.TxRunner

	FailBegin      error
	FailBeforeBody error
	FailCommit     error
	// FailCall, when > 0, applies FailCallErr as a commit failure to that
	// InTx call only (1-based).
	FailCall    int
	FailCallErr error

	BeginCalls    int
	CommitCalls   int
	RollbackCalls int
}

var _ aggregates.TxRunner = (*InjectedTxRunner)(nil)

func (r *InjectedTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	r.mu.Lock()
	r.BeginCalls++
	call := r.BeginCalls
	failBegin := r.FailBegin
	failBeforeBody := r.FailBeforeBody
	failCommit := r.FailCommit
	if r.FailCall > 0 && r.FailCall == call {
		failCommit = r.FailCallErr
	}
	r.mu.Unlock()

	if failBegin != nil {
		return failBegin
	}
	if failBeforeBody != nil {
		r.rollback()
		return failBeforeBody
	}
	body := func(dbc dbctx.Context) error {
		if fn != nil {
			if err := fn(dbc); err != nil {
				return err
			}
		}
		return failCommit
	}
	var err error
	if r.Inner != nil {
		err = r.Inner.InTx(ctx, body)
	} else {
		err = body(dbctx.Context{Ctx: ctx})
	}
	if err != nil {
		r.rollback()
		return err
	}
	r.mu.Lock()
	r.CommitCalls++
	r.mu.Unlock()
	return nil
}

func (r *InjectedTxRunner) rollback() {
	r.mu.Lock()
	r.RollbackCalls++
	r.mu.Unlock()
}
