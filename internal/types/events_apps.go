package types

import (
	"gorm.io/datatypes"
)

// The four flatpak launch variants share the same payload: the replacement
// app id plus the argv that triggered the suggestion.

type LaunchedEquivalentExistingFlatpak struct {
	SingularCore
	ReplacementAppID string         `gorm:"not null"`
	Argv             datatypes.JSON `gorm:"type:jsonb;not null"`
}

func (LaunchedEquivalentExistingFlatpak) TableName() string {
	return "launched_equivalent_existing_flatpak"
}

type LaunchedEquivalentInstallerForFlatpak struct {
	SingularCore
	ReplacementAppID string         `gorm:"not null"`
	Argv             datatypes.JSON `gorm:"type:jsonb;not null"`
}

func (LaunchedEquivalentInstallerForFlatpak) TableName() string {
	return "launched_equivalent_installer_for_flatpak"
}

type LaunchedExistingFlatpak struct {
	SingularCore
	ReplacementAppID string         `gorm:"not null"`
	Argv             datatypes.JSON `gorm:"type:jsonb;not null"`
}

func (LaunchedExistingFlatpak) TableName() string { return "launched_existing_flatpak" }

type LaunchedInstallerForFlatpak struct {
	SingularCore
	ReplacementAppID string         `gorm:"not null"`
	Argv             datatypes.JSON `gorm:"type:jsonb;not null"`
}

func (LaunchedInstallerForFlatpak) TableName() string { return "launched_installer_for_flatpak" }

type LinuxPackageOpened struct {
	SingularCore
	Argv datatypes.JSON `gorm:"type:jsonb;not null"`
}

func (LinuxPackageOpened) TableName() string { return "linux_package_opened" }

type WindowsAppOpened struct {
	SingularCore
	Argv datatypes.JSON `gorm:"type:jsonb;not null"`
}

func (WindowsAppOpened) TableName() string { return "windows_app_opened" }

type ShellAppAddedToDesktop struct {
	SingularCore
	AppID string `gorm:"not null"`
}

func (ShellAppAddedToDesktop) TableName() string { return "shell_app_added_to_desktop" }

type ShellAppRemovedFromDesktop struct {
	SingularCore
	AppID string `gorm:"not null"`
}

func (ShellAppRemovedFromDesktop) TableName() string { return "shell_app_removed_from_desktop" }
