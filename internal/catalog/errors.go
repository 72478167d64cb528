package catalog

import (
	"errors"
	"fmt"

	"github.com/yungbote/metricsd/internal/variant"
)

// ErrEmptyPayload marks an event that arrived without a payload even though
// its decoder needs one. For UUIDs listed in the ignored-empty-payload set
// the dispatcher turns this into a silent drop instead of an invalid row.
var ErrEmptyPayload = errors.New("event received with no payload")

// WrongPayloadError reports a payload whose type does not match the catalog
// signature for the event.
type WrongPayloadError struct {
	Event    string
	Expected string
	Got      variant.Value
}

func (e *WrongPayloadError) Error() string {
	return fmt.Sprintf("%s needs a %s payload, but got %s (%s)",
		e.Event, e.Expected, e.Got, e.Got.Signature())
}

// UnexpectedPayloadError reports a payload on an event that must not carry
// one.
type UnexpectedPayloadError struct {
	Event string
	Got   variant.Value
}

func (e *UnexpectedPayloadError) Error() string {
	return fmt.Sprintf("%s takes no payload, but got %s (%s)",
		e.Event, e.Got, e.Got.Signature())
}

// MissingKeyError reports a structured payload lacking one of its mandatory
// keys.
type MissingKeyError struct {
	Event string
	Key   string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("%s payload is missing the %q key", e.Event, e.Key)
}

// InvalidOarsFilterError reports an OARS filter whose inner tag is not a
// supported specification version.
type InvalidOarsFilterError struct {
	Tag string
}

func (e *InvalidOarsFilterError) Error() string {
	return fmt.Sprintf("invalid OARS filter tag %q, expected oars-1.0 or oars-1.1", e.Tag)
}
