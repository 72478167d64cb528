package types

import (
	"gorm.io/datatypes"
)

type ParentalControlsBlockedFlatpakInstall struct {
	SingularCore
	App string `gorm:"not null"`
}

func (ParentalControlsBlockedFlatpakInstall) TableName() string {
	return "parental_controls_blocked_flatpak_install"
}

type ParentalControlsBlockedFlatpakRun struct {
	SingularCore
	App string `gorm:"not null"`
}

func (ParentalControlsBlockedFlatpakRun) TableName() string {
	return "parental_controls_blocked_flatpak_run"
}

// ParentalControlsChanged is a snapshot of the whole parental controls
// configuration at the time it was changed.
type ParentalControlsChanged struct {
	SingularCore
	AppFilterIsWhitelist    bool           `gorm:"not null"`
	AppFilter               datatypes.JSON `gorm:"type:jsonb;not null"`
	OarsFilter              datatypes.JSON `gorm:"type:jsonb;not null"`
	AllowUserInstallation   bool           `gorm:"not null"`
	AllowSystemInstallation bool           `gorm:"not null"`
	IsAdministrator         bool           `gorm:"not null"`
	IsInitialSetup          bool           `gorm:"not null"`
}

func (ParentalControlsChanged) TableName() string { return "parental_controls_changed" }
