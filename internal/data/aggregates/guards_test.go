package aggregates

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	repotestutil "github.com/yungbote/quizbridge-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/quizbridge-backend/internal/domain/aggregates"
	"github.com/yungbote/quizbridge-backend/internal/domain/quiz"
	"github.com/yungbote/quizbridge-backend/internal/platform/dbctx"
)

func TestUpdateWhereInOnlyAppliesFromAllowedValues(t *testing.T) {
	db := repotestutil.DB(t)
	ctx := context.Background()
	q := repotestutil.SeedQuiz(t, ctx, db)
	guard := NewCASGuard(db)
	dbc := dbctx.Context{Ctx: ctx}
	column := quiz.StageExtraction.Column()
	allowed := []string{string(quiz.StagePending), string(quiz.StageFailed)}

	ok, err := guard.UpdateWhereIn(dbc, q.TableName(), q.ID, column, allowed,
		map[string]any{column: string(quiz.StageProcessing)})
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	ok, err = guard.UpdateWhereIn(dbc, q.TableName(), q.ID, column, allowed,
		map[string]any{column: string(quiz.StageProcessing)})
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if ok {
		t.Fatalf("second claim should not apply while processing")
	}
}

func TestUpdateWhereInRejectsMissingArguments(t *testing.T) {
	guard := NewCASGuard(nil)
	dbc := dbctx.Context{Ctx: context.Background()}
	_, err := guard.UpdateWhereIn(dbc, "quiz", uuid.New(), "status", []string{"created"}, nil)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("no db: want validation error, got %v", err)
	}
	if mapped := MapError("quiz.reserve_stage", err); !domainagg.IsCode(mapped, domainagg.CodeValidation) {
		t.Fatalf("no db: mapped code want=validation got %v", mapped)
	}

	guard = NewCASGuard(repotestutil.SQLiteDB(t))
	cases := []struct {
		name    string
		table   string
		id      uuid.UUID
		column  string
		allowed []string
	}{
		{name: "table", table: " ", id: uuid.New(), column: "status", allowed: []string{"created"}},
		{name: "id", table: "quiz", id: uuid.Nil, column: "status", allowed: []string{"created"}},
		{name: "allowed", table: "quiz", id: uuid.New(), column: "status"},
	}
	for _, tc := range cases {
		if _, err := guard.UpdateWhereIn(dbc, tc.table, tc.id, tc.column, tc.allowed, map[string]any{}); !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: want validation error, got %v", tc.name, err)
		}
	}
}
