package types

import (
	"time"
)

// MetricsRequest is one atomic submission from a client: the envelope header
// plus the three event arrays it carried. The raw serialized bytes are kept
// for audit and the sha512 digest makes ingestion idempotent.
type MetricsRequest struct {
	ID         int64  `gorm:"primaryKey"`
	Serialized []byte `gorm:"not null"`
	Sha512     string `gorm:"uniqueIndex;not null"`
	ReceivedAt time.Time `gorm:"not null"`

	// Client clocks at send time, in nanoseconds. Their difference pins the
	// monotonic clock to wall-clock time for the whole request.
	AbsoluteTimestamp int64 `gorm:"not null"`
	RelativeTimestamp int64 `gorm:"not null"`

	MachineID  string `gorm:"index;not null"`
	SendNumber int32  `gorm:"not null"`
}

func (MetricsRequest) TableName() string { return "metrics_request" }

// OriginBoot returns the wall-clock origin of the client's monotonic clock.
func (r *MetricsRequest) OriginBoot() int64 {
	return r.AbsoluteTimestamp - r.RelativeTimestamp
}
