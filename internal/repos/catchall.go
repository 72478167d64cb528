package repos

import (
	"context"
	"database/sql"

	"gorm.io/gorm"

	"github.com/yungbote/metricsd/internal/logger"
	"github.com/yungbote/metricsd/internal/types"
)

// CatchallRepo walks the unknown/invalid event tables for replay. Chunks are
// scanned newest first below a fixed upper bound, so rows re-filed as unknown
// while a replay runs are never visited twice by the same pass.
type CatchallRepo interface {
	MaxID(ctx context.Context, tx *gorm.DB, model any) (int64, error)

	UnknownSingularChunk(ctx context.Context, tx *gorm.DB, beforeID int64, limit int) ([]types.UnknownSingularEvent, error)
	InvalidSingularChunk(ctx context.Context, tx *gorm.DB, beforeID int64, limit int) ([]types.InvalidSingularEvent, error)
	UnknownAggregateChunk(ctx context.Context, tx *gorm.DB, beforeID int64, limit int) ([]types.UnknownAggregateEvent, error)
	InvalidAggregateChunk(ctx context.Context, tx *gorm.DB, beforeID int64, limit int) ([]types.InvalidAggregateEvent, error)
	UnknownSequenceChunk(ctx context.Context, tx *gorm.DB, beforeID int64, limit int) ([]types.UnknownSequence, error)
	InvalidSequenceChunk(ctx context.Context, tx *gorm.DB, beforeID int64, limit int) ([]types.InvalidSequence, error)

	Delete(ctx context.Context, tx *gorm.DB, model any, id int64) error
}

type catchallRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCatchallRepo(db *gorm.DB, baseLog *logger.Logger) CatchallRepo {
	return &catchallRepo{db: db, log: baseLog.With("repo", "CatchallRepo")}
}

func (r *catchallRepo) tx(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// MaxID returns the highest id currently in the model's table, or 0 when the
// table is empty.
func (r *catchallRepo) MaxID(ctx context.Context, tx *gorm.DB, model any) (int64, error) {
	var maxID sql.NullInt64
	err := r.tx(tx).WithContext(ctx).
		Model(model).
		Select("MAX(id)").
		Scan(&maxID).Error
	if err != nil {
		return 0, err
	}
	return maxID.Int64, nil
}

func chunk[T any](ctx context.Context, tx *gorm.DB, beforeID int64, limit int) ([]T, error) {
	var rows []T
	err := tx.WithContext(ctx).
		Where("id <= ?", beforeID).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *catchallRepo) UnknownSingularChunk(ctx context.Context, tx *gorm.DB, beforeID int64, limit int) ([]types.UnknownSingularEvent, error) {
	return chunk[types.UnknownSingularEvent](ctx, r.tx(tx), beforeID, limit)
}

func (r *catchallRepo) InvalidSingularChunk(ctx context.Context, tx *gorm.DB, beforeID int64, limit int) ([]types.InvalidSingularEvent, error) {
	return chunk[types.InvalidSingularEvent](ctx, r.tx(tx), beforeID, limit)
}

func (r *catchallRepo) UnknownAggregateChunk(ctx context.Context, tx *gorm.DB, beforeID int64, limit int) ([]types.UnknownAggregateEvent, error) {
	return chunk[types.UnknownAggregateEvent](ctx, r.tx(tx), beforeID, limit)
}

func (r *catchallRepo) InvalidAggregateChunk(ctx context.Context, tx *gorm.DB, beforeID int64, limit int) ([]types.InvalidAggregateEvent, error) {
	return chunk[types.InvalidAggregateEvent](ctx, r.tx(tx), beforeID, limit)
}

func (r *catchallRepo) UnknownSequenceChunk(ctx context.Context, tx *gorm.DB, beforeID int64, limit int) ([]types.UnknownSequence, error) {
	return chunk[types.UnknownSequence](ctx, r.tx(tx), beforeID, limit)
}

func (r *catchallRepo) InvalidSequenceChunk(ctx context.Context, tx *gorm.DB, beforeID int64, limit int) ([]types.InvalidSequence, error) {
	return chunk[types.InvalidSequence](ctx, r.tx(tx), beforeID, limit)
}

func (r *catchallRepo) Delete(ctx context.Context, tx *gorm.DB, model any, id int64) error {
	return r.tx(tx).WithContext(ctx).
		Where("id = ?", id).
		Delete(model).Error
}
