// Package calibration estimates the intrinsic parameters and lens distortion of a camera from
// views of a planar checkerboard.
package calibration

import (
	"image"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
)

// GeneratePattern returns the inner corners of a boardWidth x boardHeight board in board
// coordinates, row-major: point j*boardWidth+i is (i*squareSize, j*squareSize, 0). Non-positive
// inputs yield an empty pattern.
func GeneratePattern(boardWidth, boardHeight int, squareSize float64) []r3.Vector {
	if boardWidth <= 0 || boardHeight <= 0 || !(squareSize > 0) {
		return []r3.Vector{}
	}
	pattern := make([]r3.Vector, 0, boardWidth*boardHeight)
	for j := 0; j < boardHeight; j++ {
		for i := 0; i < boardWidth; i++ {
			pattern = append(pattern, r3.Vector{X: float64(i) * squareSize, Y: float64(j) * squareSize})
		}
	}
	return pattern
}

// BoardSpec describes the calibration target and how many views of it to collect.
type BoardSpec struct {
	// Width and Height count inner corners, not squares.
	Width                int     `json:"board_width"`
	Height               int     `json:"board_height"`
	SquareSize           float64 `json:"square_size"`
	RequiredObservations int     `json:"required_observations"`
}

// Validate checks the board, reporting errors under path.
func (b *BoardSpec) Validate(path string) error {
	if b.Width == 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "board_width")
	}
	if b.Height == 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "board_height")
	}
	if b.Width < 2 || b.Height < 2 {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("board must have at least 2x2 inner corners, got %dx%d", b.Width, b.Height))
	}
	if !(b.SquareSize > 0) {
		return goutils.NewConfigValidationError(path, errors.Errorf("square_size must be positive, got %v", b.SquareSize))
	}
	if b.RequiredObservations < 1 {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("required_observations must be at least 1, got %d", b.RequiredObservations))
	}
	return nil
}

// PatternSize returns the inner corner count as (Width, Height).
func (b *BoardSpec) PatternSize() image.Point {
	return image.Point{b.Width, b.Height}
}

// Pattern returns GeneratePattern for the board.
func (b *BoardSpec) Pattern() []r3.Vector {
	return GeneratePattern(b.Width, b.Height, b.SquareSize)
}
