package repos

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/metricsd/internal/imageid"
	"github.com/yungbote/metricsd/internal/logger"
	"github.com/yungbote/metricsd/internal/types"
)

// MachineRepo maintains the per-machine row derived from configuration
// events. Every method is an upsert keyed on machine_id, so events may land
// in any order and more than once.
type MachineRepo interface {
	UpsertImage(ctx context.Context, tx *gorm.DB, machineID, imageID string, parsed imageid.Parsed) error
	SetDemo(ctx context.Context, tx *gorm.DB, machineID string) error
	SetDualBoot(ctx context.Context, tx *gorm.DB, machineID string) error
	SetLive(ctx context.Context, tx *gorm.DB, machineID string) error
	UpsertLocation(ctx context.Context, tx *gorm.DB, machineID string, info map[string]string) error
	GetByMachineID(ctx context.Context, tx *gorm.DB, machineID string) (*types.Machine, error)
}

type machineRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMachineRepo(db *gorm.DB, baseLog *logger.Logger) MachineRepo {
	return &machineRepo{db: db, log: baseLog.With("repo", "MachineRepo")}
}

func (r *machineRepo) UpsertImage(ctx context.Context, tx *gorm.DB, machineID, imageID string, parsed imageid.Parsed) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	m := types.Machine{
		MachineID:        machineID,
		ImageID:          &imageID,
		ImageProduct:     &parsed.Product,
		ImageBranch:      &parsed.Branch,
		ImageArch:        &parsed.Arch,
		ImagePlatform:    &parsed.Platform,
		ImageTimestamp:   &parsed.Timestamp,
		ImagePersonality: &parsed.Personality,
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "machine_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"image_id", "image_product", "image_branch", "image_arch",
				"image_platform", "image_timestamp", "image_personality",
			}),
		}).
		Create(&m).Error
}

func (r *machineRepo) SetDemo(ctx context.Context, tx *gorm.DB, machineID string) error {
	return r.setFlag(ctx, tx, machineID, "demo", &types.Machine{MachineID: machineID, Demo: true})
}

func (r *machineRepo) SetDualBoot(ctx context.Context, tx *gorm.DB, machineID string) error {
	return r.setFlag(ctx, tx, machineID, "dualboot", &types.Machine{MachineID: machineID, DualBoot: true})
}

func (r *machineRepo) SetLive(ctx context.Context, tx *gorm.DB, machineID string) error {
	return r.setFlag(ctx, tx, machineID, "live", &types.Machine{MachineID: machineID, Live: true})
}

// setFlag only ever raises the flag: replaying the same boot event twice, or
// after the image row already exists, must not clear anything.
func (r *machineRepo) setFlag(ctx context.Context, tx *gorm.DB, machineID, column string, m *types.Machine) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "machine_id"}},
			DoUpdates: clause.Assignments(map[string]any{column: true}),
		}).
		Create(m).Error
}

func (r *machineRepo) UpsertLocation(ctx context.Context, tx *gorm.DB, machineID string, info map[string]string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	blob, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal location info: %w", err)
	}

	m := types.Machine{
		MachineID:    machineID,
		Site:         datatypes.JSON(blob),
		SiteID:       locationField(info, "id"),
		SiteCity:     locationField(info, "city"),
		SiteState:    locationField(info, "state"),
		SiteStreet:   locationField(info, "street"),
		SiteCountry:  locationField(info, "country"),
		SiteFacility: locationField(info, "facility"),
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "machine_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"site", "site_id", "site_city", "site_state",
				"site_street", "site_country", "site_facility",
			}),
		}).
		Create(&m).Error
}

// locationField leaves the column NULL when the label did not carry the key,
// so a relabel that drops a field also drops the column.
func locationField(info map[string]string, key string) *string {
	if v, ok := info[key]; ok {
		return &v
	}
	return nil
}

func (r *machineRepo) GetByMachineID(ctx context.Context, tx *gorm.DB, machineID string) (*types.Machine, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var m types.Machine
	if err := transaction.WithContext(ctx).
		Where("machine_id = ?", machineID).
		First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}
