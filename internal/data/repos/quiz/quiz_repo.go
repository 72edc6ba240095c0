package quiz

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/quizbridge-backend/internal/domain/quiz"
	"github.com/yungbote/quizbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/quizbridge-backend/internal/platform/logger"
)

type QuizRepo interface {
	Create(dbc dbctx.Context, q *types.Quiz) (*types.Quiz, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Quiz, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Quiz, error)
	ListByOwner(dbc dbctx.Context, ownerUserID uuid.UUID, limit int) ([]*types.Quiz, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type quizRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuizRepo(db *gorm.DB, baseLog *logger.Logger) QuizRepo {
	return &quizRepo{
		db:  db,
		log: baseLog.With("repo", "QuizRepo"),
	}
}

func (r *quizRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *quizRepo) Create(dbc dbctx.Context, q *types.Quiz) (*types.Quiz, error) {
	if q == nil {
		return nil, nil
	}
	if err := r.tx(dbc).Create(q).Error; err != nil {
		return nil, err
	}
	return q, nil
}

func (r *quizRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Quiz, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var rows []*types.Quiz
	if err := r.tx(dbc).Where("id = ?", id).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// LockByID reads the quiz with SELECT ... FOR UPDATE. Dialects without row
// locks (sqlite) drop the clause and rely on the single writer.
func (r *quizRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Quiz, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var rows []*types.Quiz
	if err := r.tx(dbc).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *quizRepo) ListByOwner(dbc dbctx.Context, ownerUserID uuid.UUID, limit int) ([]*types.Quiz, error) {
	var out []*types.Quiz
	if ownerUserID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if err := r.tx(dbc).
		Where("owner_user_id = ?", ownerUserID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *quizRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return r.tx(dbc).Model(&types.Quiz{}).Where("id = ?", id).Updates(updates).Error
}
