package types

import (
	"time"

	"github.com/google/uuid"
)

// EventCore carries the columns shared by every decoded event row. Events
// belong to exactly one request and never outlive it.
type EventCore struct {
	ID        int64 `gorm:"primaryKey"`
	UserID    int64 `gorm:"not null"`
	RequestID int64 `gorm:"index;not null"`
}

// SingularCore is the base of events with a single point-in-time timestamp.
// The column keeps the historical "occured_at" spelling.
type SingularCore struct {
	EventCore
	OccuredAt time.Time `gorm:"column:occured_at;not null"`
}

func (c *SingularCore) Singular() *SingularCore { return c }

// SingularModel is implemented by every typed singular event through its
// embedded SingularCore.
type SingularModel interface {
	Singular() *SingularCore
	TableName() string
}

// AggregateCore is the base of counted events.
type AggregateCore struct {
	SingularCore
	Count int64 `gorm:"not null"`
}

func (c *AggregateCore) Aggregate() *AggregateCore { return c }

type AggregateModel interface {
	Aggregate() *AggregateCore
	TableName() string
}

// SequenceCore is the base of start/stop pair events.
type SequenceCore struct {
	EventCore
	StartedAt time.Time `gorm:"not null"`
	StoppedAt time.Time `gorm:"not null"`
}

func (c *SequenceCore) Sequence() *SequenceCore { return c }

type SequenceModel interface {
	Sequence() *SequenceCore
	TableName() string
}

// Catch-all rows. Unknown rows hold events whose UUID is not in the catalog;
// invalid rows hold events whose decoder failed, together with the error
// text. Both keep the raw payload bytes so replay can re-run the dispatch
// once the catalog grows.

type UnknownSingularEvent struct {
	SingularCore
	EventID     uuid.UUID `gorm:"type:uuid;index;not null"`
	PayloadData []byte
}

func (UnknownSingularEvent) TableName() string { return "unknown_singular_event" }

type InvalidSingularEvent struct {
	SingularCore
	EventID     uuid.UUID `gorm:"type:uuid;index;not null"`
	PayloadData []byte
	Error       string `gorm:"not null"`
}

func (InvalidSingularEvent) TableName() string { return "invalid_singular_event" }

type UnknownAggregateEvent struct {
	AggregateCore
	EventID     uuid.UUID `gorm:"type:uuid;index;not null"`
	PayloadData []byte
}

func (UnknownAggregateEvent) TableName() string { return "unknown_aggregate_event" }

type InvalidAggregateEvent struct {
	AggregateCore
	EventID     uuid.UUID `gorm:"type:uuid;index;not null"`
	PayloadData []byte
	Error       string `gorm:"not null"`
}

func (InvalidAggregateEvent) TableName() string { return "invalid_aggregate_event" }

// Sequence catch-alls store the whole a(xmv) element array; start and stop
// times are recomputed from it at replay time via the owning request.

type UnknownSequence struct {
	EventCore
	EventID     uuid.UUID `gorm:"type:uuid;index;not null"`
	PayloadData []byte
}

func (UnknownSequence) TableName() string { return "unknown_sequence" }

type InvalidSequence struct {
	EventCore
	EventID     uuid.UUID `gorm:"type:uuid;index;not null"`
	PayloadData []byte
	Error       string `gorm:"not null"`
}

func (InvalidSequence) TableName() string { return "invalid_sequence" }
