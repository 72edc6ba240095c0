package aggregates

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	domainagg "github.com/yungbote/quizbridge-backend/internal/domain/aggregates"
	"gorm.io/gorm"
)

func TestMapError_Validation(t *testing.T) {
	err := MapError("op", ValidationError("bad input"))
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("expected validation code, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestMapError_Conflict(t *testing.T) {
	err := MapError("op", ConflictError("stale"))
	if !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("expected conflict code, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestMapError_NotFound(t *testing.T) {
	err := MapError("op", gorm.ErrRecordNotFound)
	if !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("expected not_found code, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestMapError_PassthroughAggregateError(t *testing.T) {
	in := domainagg.NewError(domainagg.CodeRetryable, "op", "retry", errors.New("boom"))
	out := MapError("other", in)
	if out != in {
		t.Fatalf("expected passthrough aggregate error")
	}
}

func TestMapError_Precondition(t *testing.T) {
	err := MapError("op", PreconditionError("not reserved"))
	if !domainagg.IsCode(err, domainagg.CodePreconditionFailed) {
		t.Fatalf("expected precondition_failed code, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestIsSerializationFailure(t *testing.T) {
	if !IsSerializationFailure(&pgconn.PgError{Code: "40001"}) {
		t.Fatalf("40001 should be retried")
	}
	if !IsSerializationFailure(errors.New("database is locked")) {
		t.Fatalf("sqlite lock should be retried")
	}
	if IsSerializationFailure(&pgconn.PgError{Code: "23505"}) {
		t.Fatalf("unique violation must not be retried")
	}
	if IsSerializationFailure(nil) {
		t.Fatalf("nil is not a failure")
	}
}

func TestParseIsolation(t *testing.T) {
	if ParseIsolation("serializable") != sql.LevelSerializable {
		t.Fatalf("serializable")
	}
	if ParseIsolation("REPEATABLE_READ") != sql.LevelRepeatableRead {
		t.Fatalf("repeatable read")
	}
	if ParseIsolation("bogus") != sql.LevelDefault {
		t.Fatalf("unknown should map to default")
	}
}
