package aggregates

import (
	"context"
	"strings"
	"time"

	domainagg "github.com/yungbote/quizbridge-backend/internal/domain/aggregates"
	"github.com/yungbote/quizbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/quizbridge-backend/internal/platform/logger"
	"gorm.io/gorm"
)

type BaseDeps struct {
	DB        *gorm.DB
	Log       *logger.Logger
	Runner    TxRunner
	TxOptions TxOptions
	Hooks     Hooks
	CASGuard  CASGuard
}

func (d BaseDeps) withDefaults() BaseDeps {
	if d.TxOptions == (TxOptions{}) {
		d.TxOptions = DefaultTxOptions()
	}
	if d.Runner == nil {
		d.Runner = NewGormTxRunner(d.DB, d.TxOptions)
	}
	if d.Hooks == nil {
		d.Hooks = noopHooks{}
	}
	if d.CASGuard.db == nil {
		d.CASGuard = NewCASGuard(d.DB)
	}
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	return d
}

// executeWrite is the single entry point for aggregate writes: one short
// transaction, mapped errors, observed outcome. Callers keep network I/O out of fn.
func executeWrite(ctx context.Context, deps BaseDeps, op string, fn func(dbc dbctx.Context) error) error {
	start := time.Now()
	deps = deps.withDefaults()
	op = strings.TrimSpace(op)
	if op == "" {
		op = "aggregate.write"
	}
	err := deps.Runner.InTx(ctx, fn)
	mapped := MapError(op, err)

	status := "success"
	if mapped != nil {
		status = aggregateErrorStatus(mapped)
		if domainagg.IsCode(mapped, domainagg.CodeConflict) {
			deps.Hooks.IncConflict(op)
		}
		if domainagg.IsCode(mapped, domainagg.CodeRetryable) {
			deps.Hooks.IncRetry(op)
		}
		deps.Log.Debug("aggregate write failed", "op", op, "status", status, "error", mapped)
	}
	deps.Hooks.ObserveOperation(op, status, time.Since(start))
	return mapped
}

func aggregateErrorStatus(err error) string {
	if err == nil {
		return "success"
	}
	code := strings.TrimSpace(string(domainagg.CodeOf(err)))
	if code == "" {
		code = strings.TrimSpace(string(domainagg.CodeOf(MapError("aggregate.status", err))))
	}
	if code == "" {
		return "failure"
	}
	return code
}
