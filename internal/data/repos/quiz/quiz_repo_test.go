package quiz

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/quizbridge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/quizbridge-backend/internal/domain/quiz"
	"github.com/yungbote/quizbridge-backend/internal/platform/dbctx"
)

func TestQuizRepo(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewQuizRepo(db, testutil.Logger(t))

	q := testutil.SeedQuiz(t, ctx, db)
	dbc := dbctx.Context{Ctx: ctx}

	got, err := repo.GetByID(dbc, q.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: err=%v got=%v", err, got)
	}
	if got.Status != types.StatusCreated || got.ContentExtractionStatus != types.StagePending {
		t.Fatalf("unexpected defaults: status=%s extraction=%s", got.Status, got.ContentExtractionStatus)
	}
	modules, err := got.Modules()
	if err != nil || len(modules) != 2 {
		t.Fatalf("Modules: err=%v len=%d", err, len(modules))
	}
	meta, err := got.Metadata()
	if err != nil || len(meta.SuccessfulBatches) != 0 || len(meta.FailedBatches) != 0 {
		t.Fatalf("Metadata: err=%v meta=%+v", err, meta)
	}

	if missing, err := repo.GetByID(dbc, uuid.New()); err != nil || missing != nil {
		t.Fatalf("GetByID(missing): err=%v got=%v", err, missing)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		locked, err := repo.LockByID(dbctx.Context{Ctx: ctx, Tx: tx}, q.ID)
		if err != nil {
			return err
		}
		if locked == nil || locked.ID != q.ID {
			t.Fatalf("LockByID returned %v", locked)
		}
		return repo.UpdateFields(dbctx.Context{Ctx: ctx, Tx: tx}, q.ID, map[string]interface{}{
			"content_extraction_status": types.StageProcessing,
		})
	})
	if err != nil {
		t.Fatalf("lock+update: %v", err)
	}
	got, _ = repo.GetByID(dbc, q.ID)
	if got.ContentExtractionStatus != types.StageProcessing {
		t.Fatalf("UpdateFields: extraction=%s", got.ContentExtractionStatus)
	}

	list, err := repo.ListByOwner(dbc, q.OwnerUserID, 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListByOwner: err=%v len=%d", err, len(list))
	}
}
