package imageid

import (
	"fmt"
	"regexp"
	"time"
)

// Image ids name the OS image a machine was flashed with, e.g.
// "eos-eos3.7-amd64-amd64.190419-225606.base": product, branch, architecture
// and platform, then a build timestamp and a personality.

var imageIDPattern = regexp.MustCompile(
	`^(?P<product>[^-]+)-(?P<branch>[^-]+)-(?P<arch>[^-]+)-(?P<platform>[^.]+)\.(?P<timestamp>\d{6}-\d{6})\.(?P<personality>\S+)$`)

// InvalidError is returned when a string does not look like an image id. The
// caller records the event anyway and only skips the machine update.
type InvalidError struct {
	ImageID string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid image id %q", e.ImageID)
}

// Parsed holds the six components of an image id.
type Parsed struct {
	Product     string
	Branch      string
	Arch        string
	Platform    string
	Timestamp   time.Time
	Personality string
}

// Parse splits an image id into its components. The build timestamp is read
// as YYMMDD-HHMMSS in UTC.
func Parse(imageID string) (Parsed, error) {
	m := imageIDPattern.FindStringSubmatch(imageID)
	if m == nil {
		return Parsed{}, &InvalidError{ImageID: imageID}
	}
	ts, err := time.ParseInLocation("060102-150405", m[5], time.UTC)
	if err != nil {
		return Parsed{}, &InvalidError{ImageID: imageID}
	}
	return Parsed{
		Product:     m[1],
		Branch:      m[2],
		Arch:        m[3],
		Platform:    m[4],
		Timestamp:   ts,
		Personality: m[6],
	}, nil
}
