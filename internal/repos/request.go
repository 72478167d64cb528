package repos

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/metricsd/internal/logger"
	"github.com/yungbote/metricsd/internal/types"
)

type RequestRepo interface {
	// Insert stores the request and reports whether a row was created. A
	// sha512 conflict is the benign duplicate-submission case and returns
	// created=false with no error.
	Insert(ctx context.Context, tx *gorm.DB, req *types.MetricsRequest) (bool, error)
	GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.MetricsRequest, error)
}

type requestRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRequestRepo(db *gorm.DB, baseLog *logger.Logger) RequestRepo {
	return &requestRepo{db: db, log: baseLog.With("repo", "RequestRepo")}
}

func (r *requestRepo) Insert(ctx context.Context, tx *gorm.DB, req *types.MetricsRequest) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	res := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "sha512"}},
			DoNothing: true,
		}).
		Create(req)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *requestRepo) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.MetricsRequest, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var req types.MetricsRequest
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}
