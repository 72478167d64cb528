package types

import (
	"gorm.io/datatypes"
)

// Uptime reports accumulated uptime and the number of boots so far.
type Uptime struct {
	SingularCore
	AccumulatedUptime int64 `gorm:"not null"`
	NumberOfBoots     int64 `gorm:"not null"`
}

func (Uptime) TableName() string { return "uptime" }

// OSVersion keeps only the version component of the reported triple.
type OSVersion struct {
	SingularCore
	Version string `gorm:"not null"`
}

func (OSVersion) TableName() string { return "os_version" }

type RAMSize struct {
	SingularCore
	Total int64 `gorm:"not null"`
}

func (RAMSize) TableName() string { return "ram_size" }

type DiskSpaceTotal struct {
	SingularCore
	Total int64 `gorm:"not null"`
	Used  int64 `gorm:"not null"`
	Free  int64 `gorm:"not null"`
}

func (DiskSpaceTotal) TableName() string { return "disk_space_total" }

type DiskSpaceExtra struct {
	SingularCore
	Total int64 `gorm:"not null"`
	Used  int64 `gorm:"not null"`
	Free  int64 `gorm:"not null"`
}

func (DiskSpaceExtra) TableName() string { return "disk_space_extra" }

// CPUInfo stores one entry per package: model, number of cores and maximum
// frequency.
type CPUInfo struct {
	SingularCore
	Info datatypes.JSON `gorm:"type:jsonb;not null"`
}

func (CPUInfo) TableName() string { return "cpu_info" }

type NetworkID struct {
	SingularCore
	NetworkID int64 `gorm:"column:network_id;not null"`
}

func (NetworkID) TableName() string { return "network_id" }

type ProgramDumpedCore struct {
	SingularCore
	Info datatypes.JSON `gorm:"type:jsonb;not null"`
}

func (ProgramDumpedCore) TableName() string { return "program_dumped_core" }

/// StartupFinished mirrors systemd-analyze: per-phase durations plus the
// total, in microseconds.
type StartupFinished struct {
	SingularCore
	Firmware  int64 `gorm:"not null"`
	Loader    int64 `gorm:"not null"`
	Kernel    int64 `gorm:"not null"`
	Initrd    int64 `gorm:"not null"`
	Userspace int64 `gorm:"not null"`
	Total     int64 `gorm:"not null"`
}

func (StartupFinished) TableName() string { return "startup_finished" }

type UpdaterBranchSelected struct {
	SingularCore
	HardwareVendor  string `gorm:"not null"`
	HardwareProduct string `gorm:"not null"`
	OSTreeBranch    string `gorm:"column:ostree_branch;not null"`
	OnHold          bool   `gorm:"not null"`
}

func (UpdaterBranchSelected) TableName() string { return "updater_branch_selected" }

// Monitor (dis)connect events drop the serial number element before storage.

type MonitorConnected struct {
	SingularCore
	DisplayName   string `gorm:"not null"`
	DisplayVendor string `gorm:"not null"`
	DisplayProduct string `gorm:"not null"`
	DisplayWidth  int32  `gorm:"not null"`
	DisplayHeight int32  `gorm:"not null"`
	EDID          []byte `gorm:"column:edid"`
}

func (MonitorConnected) TableName() string { return "monitor_connected" }

type MonitorDisconnected struct {
	SingularCore
	DisplayName   string `gorm:"not null"`
	DisplayVendor string `gorm:"not null"`
	DisplayProduct string `gorm:"not null"`
	DisplayWidth  int32  `gorm:"not null"`
	DisplayHeight int32  `gorm:"not null"`
	EDID          []byte `gorm:"column:edid"`
}

func (MonitorDisconnected) TableName() string { return "monitor_disconnected" }
