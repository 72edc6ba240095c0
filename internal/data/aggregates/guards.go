package aggregates

import (
	"strings"

	"github.com/google/uuid"
	"github.com/yungbote/quizbridge-backend/internal/platform/dbctx"
	"gorm.io/gorm"
)

// CASGuard performs conditional updates that only apply while a column still
// holds an expected value.
type CASGuard struct {
	db *gorm.DB
}

func NewCASGuard(db *gorm.DB) CASGuard {
	return CASGuard{db: db}
}

func (g CASGuard) baseDB(dbc dbctx.Context) (*gorm.DB, error) {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx), nil
	}
	if g.db != nil {
		return g.db.WithContext(dbc.Ctx), nil
	}
	return nil, ValidationError("missing db transaction context")
}

// UpdateWhereIn updates a row only while column still holds one of allowed.
// It reports whether a row was changed.
func (g CASGuard) UpdateWhereIn(dbc dbctx.Context, table string, id uuid.UUID, column string, allowed []string, updates map[string]any) (bool, error) {
	db, err := g.baseDB(dbc)
	if err != nil {
		return false, err
	}
	table = strings.TrimSpace(table)
	column = strings.TrimSpace(column)
	if table == "" || column == "" || id == uuid.Nil {
		return false, ValidationError("table, column and id are required for UpdateWhereIn")
	}
	if len(allowed) == 0 {
		return false, ValidationError("allowed values must not be empty")
	}
	res := db.Table(table).
		Where("id = ? AND "+column+" IN ?", id, allowed).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
