package aggregates

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	domainagg "github.com/yungbote/quizbridge-backend/internal/domain/aggregates"
	"github.com/yungbote/quizbridge-backend/internal/platform/dbctx"
	"gorm.io/gorm"
)

// TxRunner provides a shared transaction boundary primitive for aggregate writes.
type TxRunner interface {
	InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error
}

// TxOptions configures the isolation level and serialization-retry budget.
type TxOptions struct {
	Isolation  sql.IsolationLevel
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultTxOptions uses the driver's default isolation (read committed on
// Postgres) and three serialization retries.
func DefaultTxOptions() TxOptions {
	return TxOptions{
		Isolation:  sql.LevelDefault,
		MaxRetries: 3,
		RetryDelay: 25 * time.Millisecond,
	}
}

// ParseIsolation maps a config string onto sql.IsolationLevel. Unknown values
// fall back to the driver default.
func ParseIsolation(raw string) sql.IsolationLevel {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), "_", " ")) {
	case "read committed":
		return sql.LevelReadCommitted
	case "repeatable read":
		return sql.LevelRepeatableRead
	case "serializable":
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

type gormTxRunner struct {
	db   *gorm.DB
	opts TxOptions
}

// NewGormTxRunner returns a transaction runner backed by GORM transactions.
func NewGormTxRunner(db *gorm.DB, opts TxOptions) TxRunner {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &gormTxRunner{db: db, opts: opts}
}

// InTx runs fn in one transaction and re-runs it from scratch when the
// database reports a serialization failure or deadlock. fn must therefore not
// perform side effects outside dbc.Tx.
func (r *gormTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if fn == nil {
		return nil
	}
	if r == nil || r.db == nil {
		return domainagg.NewError(domainagg.CodeInternal, "aggregate.tx", "transaction runner has nil db", nil)
	}
	var txOpts *sql.TxOptions
	if r.opts.Isolation != sql.LevelDefault {
		txOpts = &sql.TxOptions{Isolation: r.opts.Isolation}
	}
	var err error
	for attempt := 0; ; attempt++ {
		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(dbctx.Context{Ctx: ctx, Tx: tx})
		}, txOpts)
		if err == nil || !IsSerializationFailure(err) || attempt >= r.opts.MaxRetries {
			return err
		}
		delay := r.opts.RetryDelay * time.Duration(attempt+1)
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(delay):
		}
	}
}

// IsSerializationFailure reports errors worth re-running a whole transaction for.
func IsSerializationFailure(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "40001", "40P01":
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "could not serialize") ||
		strings.Contains(msg, "deadlock detected") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
