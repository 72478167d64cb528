package types

import (
	"time"

	"gorm.io/datatypes"
)

// Machine is the single-row-per-machine aggregate maintained as a side effect
// of specific events. Booleans only ever move from false to true, so
// concurrent upserts from different workers commute.
type Machine struct {
	ID        int64  `gorm:"primaryKey"`
	MachineID string `gorm:"uniqueIndex;not null"`

	ImageID          *string
	ImageProduct     *string
	ImageBranch      *string
	ImageArch        *string
	ImagePlatform    *string
	ImageTimestamp   *time.Time
	ImagePersonality *string

	Demo     bool `gorm:"not null;default:false"`
	DualBoot bool `gorm:"column:dualboot;not null;default:false"`
	Live     bool `gorm:"not null;default:false"`

	// Site holds the full location label blob; keys with a dedicated column
	// are flattened below, the rest survive in the blob only.
	Site         datatypes.JSON `gorm:"type:jsonb"`
	SiteID       *string
	SiteCity     *string
	SiteState    *string
	SiteStreet   *string
	SiteCountry  *string
	SiteFacility *string
}

func (Machine) TableName() string { return "machine" }
