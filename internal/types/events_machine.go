package types

import (
	"gorm.io/datatypes"
)

// The five events below feed the machine upserter after their own row is
// recorded.

type ImageVersion struct {
	SingularCore
	ImageID string `gorm:"not null;index"`
}

func (ImageVersion) TableName() string { return "image_version" }

type DualBootBooted struct {
	SingularCore
}

func (DualBootBooted) TableName() string { return "dual_boot_booted" }

type LiveUsbBooted struct {
	SingularCore
}

func (LiveUsbBooted) TableName() string { return "live_usb_booted" }

type EnteredDemoMode struct {
	SingularCore
}

func (EnteredDemoMode) TableName() string { return "entered_demo_mode" }

// LocationLabel carries a free-form labelling of where the machine lives.
// Empty values are dropped before validation; a label with no remaining keys
// is treated as an empty payload.
type LocationLabel struct {
	SingularCore
	Info datatypes.JSON `gorm:"type:jsonb;not null"`
}

func (LocationLabel) TableName() string { return "location_label" }
