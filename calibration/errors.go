package calibration

import (
	"fmt"
	"image"
)

// InsufficientDataError is returned when there are too few usable observations, or when the
// observations do not constrain the camera model.
type InsufficientDataError struct {
	Have   int
	Need   int
	Reason string
}

func (e *InsufficientDataError) Error() string {
	msg := fmt.Sprintf("insufficient calibration data: have %d observations, need %d", e.Have, e.Need)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// InconsistentGeometryError is returned when observation Index was taken at a different image size
// or pairs a different number of pattern and image points.
type InconsistentGeometryError struct {
	Index    int
	Expected image.Point
	Got      image.Point
	Reason   string
}

func (e *InconsistentGeometryError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("observation %d is inconsistent: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("observation %d has image size %dx%d, expected %dx%d",
		e.Index, e.Got.X, e.Got.Y, e.Expected.X, e.Expected.Y)
}

// RequireObservations returns an *InsufficientDataError when fewer than minimum observations were collected.
func RequireObservations(observations []Observation, minimum int) error {
	if len(observations) < minimum {
		return &InsufficientDataError{Have: len(observations), Need: minimum}
	}
	return nil
}
