package analyzer

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidSetting = errors.New("invalid setting")
var ErrNoStream = errors.New("no stream provisioned")
var ErrWindowSize = errors.New("window length does not match fft size")

// InvalidAntennaError is returned when an antenna index or name does not
// exist on the receiver. The previous selection stays in effect.
type InvalidAntennaError struct {
	// ID is the requested index, or -1 for a lookup by name.
	ID        int
	Name      string
	Available []string
}

func (e *InvalidAntennaError) Error() string {
	avail := strings.Join(e.Available, ", ")
	if e.Name != "" {
		return fmt.Sprintf("antenna %q not found, available antennas: %s", e.Name, avail)
	}
	return fmt.Sprintf("antenna id %d out of range, available antennas: %s", e.ID, avail)
}

// PartialAcquisitionError reports an acquisition interrupted before the
// block was full.
type PartialAcquisitionError struct {
	Received  int
	Requested int
	Err       error
}

func (e *PartialAcquisitionError) Error() string {
	return fmt.Sprintf("acquisition interrupted after %d of %d samples: %v", e.Received, e.Requested, e.Err)
}

func (e *PartialAcquisitionError) Unwrap() error { return e.Err }
