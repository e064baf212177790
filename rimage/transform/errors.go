package transform

import (
	"fmt"
	"image"
)

// DimensionMismatchError is returned when an image does not have the resolution a camera model
// or remap table was built for.
type DimensionMismatchError struct {
	Expected image.Point
	Got      image.Point
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("image is %dx%d but the camera model expects %dx%d",
		e.Got.X, e.Got.Y, e.Expected.X, e.Expected.Y)
}

// NewDimensionMismatchError returns a *DimensionMismatchError.
func NewDimensionMismatchError(expected, got image.Point) error {
	return &DimensionMismatchError{Expected: expected, Got: got}
}
