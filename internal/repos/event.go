package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/yungbote/metricsd/internal/logger"
)

// EventRepo inserts event rows of any kind: typed models, catch-all rows,
// singular or sequence alike. The concrete table comes from the model type.
type EventRepo interface {
	Insert(ctx context.Context, tx *gorm.DB, event any) error
}

type eventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEventRepo(db *gorm.DB, baseLog *logger.Logger) EventRepo {
	return &eventRepo{db: db, log: baseLog.With("repo", "EventRepo")}
}

func (r *eventRepo) Insert(ctx context.Context, tx *gorm.DB, event any) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(event).Error
}
