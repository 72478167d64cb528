package types

// ShellAppIsOpen spans the time an application window existed.
type ShellAppIsOpen struct {
	SequenceCore
	AppID string `gorm:"not null"`
}

func (ShellAppIsOpen) TableName() string { return "shell_app_is_open" }

// UserIsLoggedIn spans a login session; it carries no payload of its own.
type UserIsLoggedIn struct {
	SequenceCore
}

func (UserIsLoggedIn) TableName() string { return "user_is_logged_in" }
