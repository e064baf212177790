package calibration

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// An Observation pairs the known board corners with where they were seen in one image.
// Pattern[i] corresponds to Image[i]. Observations are not modified after construction.
type Observation struct {
	Pattern   []r3.Vector
	Image     []r2.Point
	ImageSize image.Point
	// Source is the index of the frame or file the observation came from.
	Source int
}

// NewObservation copies pattern and corners into a new Observation.
func NewObservation(pattern []r3.Vector, corners []r2.Point, imageSize image.Point, source int) (Observation, error) {
	if len(pattern) != len(corners) {
		return Observation{}, errors.Errorf("pattern has %d points but %d corners were found", len(pattern), len(corners))
	}
	if imageSize.X <= 0 || imageSize.Y <= 0 {
		return Observation{}, errors.Errorf("invalid image size %dx%d", imageSize.X, imageSize.Y)
	}
	return Observation{
		Pattern:   append([]r3.Vector(nil), pattern...),
		Image:     append([]r2.Point(nil), corners...),
		ImageSize: imageSize,
		Source:    source,
	}, nil
}
