package quiz

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/quizbridge-backend/internal/domain/quiz"
	"github.com/yungbote/quizbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/quizbridge-backend/internal/platform/logger"
)

type QuestionRepo interface {
	// ReplaceBatch hard-deletes prior rows of the batch key and inserts rows.
	ReplaceBatch(dbc dbctx.Context, quizID uuid.UUID, batchKey string, rows []*types.Question) (int64, error)
	ListByQuiz(dbc dbctx.Context, quizID uuid.UUID) ([]*types.Question, error)
	ListApproved(dbc dbctx.Context, quizID uuid.UUID) ([]*types.Question, error)
	CountApproved(dbc dbctx.Context, quizID uuid.UUID) (int64, error)
	CountByBatch(dbc dbctx.Context, quizID uuid.UUID, batchKey string) (int64, error)
	SetApproved(dbc dbctx.Context, quizID, questionID uuid.UUID, approved bool) (bool, error)
	SetCanvasItemIDs(dbc dbctx.Context, quizID uuid.UUID, ids map[uuid.UUID]string) error
}

type questionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuestionRepo(db *gorm.DB, baseLog *logger.Logger) QuestionRepo {
	return &questionRepo{
		db:  db,
		log: baseLog.With("repo", "QuestionRepo"),
	}
}

func (r *questionRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *questionRepo) ReplaceBatch(dbc dbctx.Context, quizID uuid.UUID, batchKey string, rows []*types.Question) (int64, error) {
	if quizID == uuid.Nil || batchKey == "" {
		return 0, nil
	}
	db := r.tx(dbc)
	res := db.Unscoped().
		Where("quiz_id = ? AND batch_key = ?", quizID, batchKey).
		Delete(&types.Question{})
	if res.Error != nil {
		return 0, res.Error
	}
	if len(rows) > 0 {
		if err := db.Create(&rows).Error; err != nil {
			return 0, err
		}
	}
	return res.RowsAffected, nil
}

func (r *questionRepo) ListByQuiz(dbc dbctx.Context, quizID uuid.UUID) ([]*types.Question, error) {
	var out []*types.Question
	if quizID == uuid.Nil {
		return out, nil
	}
	if err := r.tx(dbc).
		Where("quiz_id = ?", quizID).
		Order("batch_key ASC, position ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *questionRepo) ListApproved(dbc dbctx.Context, quizID uuid.UUID) ([]*types.Question, error) {
	var out []*types.Question
	if quizID == uuid.Nil {
		return out, nil
	}
	if err := r.tx(dbc).
		Where("quiz_id = ? AND is_approved = ?", quizID, true).
		Order("batch_key ASC, position ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *questionRepo) CountApproved(dbc dbctx.Context, quizID uuid.UUID) (int64, error) {
	var n int64
	err := r.tx(dbc).Model(&types.Question{}).
		Where("quiz_id = ? AND is_approved = ?", quizID, true).
		Count(&n).Error
	return n, err
}

func (r *questionRepo) CountByBatch(dbc dbctx.Context, quizID uuid.UUID, batchKey string) (int64, error) {
	var n int64
	err := r.tx(dbc).Model(&types.Question{}).
		Where("quiz_id = ? AND batch_key = ?", quizID, batchKey).
		Count(&n).Error
	return n, err
}

func (r *questionRepo) SetApproved(dbc dbctx.Context, quizID, questionID uuid.UUID, approved bool) (bool, error) {
	updates := map[string]interface{}{
		"is_approved": approved,
		"approved_at": nil,
		"updated_at":  time.Now().UTC(),
	}
	if approved {
		updates["approved_at"] = time.Now().UTC()
	}
	res := r.tx(dbc).Model(&types.Question{}).
		Where("id = ? AND quiz_id = ?", questionID, quizID).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *questionRepo) SetCanvasItemIDs(dbc dbctx.Context, quizID uuid.UUID, ids map[uuid.UUID]string) error {
	now := time.Now().UTC()
	db := r.tx(dbc)
	for questionID, itemID := range ids {
		if err := db.Model(&types.Question{}).
			Where("id = ? AND quiz_id = ?", questionID, quizID).
			Updates(map[string]interface{}{
				"canvas_item_id": itemID,
				"updated_at":     now,
			}).Error; err != nil {
			return err
		}
	}
	return nil
}
