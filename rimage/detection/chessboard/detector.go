// Package chessboard finds the inner corners of a checkerboard calibration target in an image.
package chessboard

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/logging"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/rimage"
)

// ErrPatternNotFound is returned when an image does not show a complete board of the requested size.
var ErrPatternNotFound = errors.New("checkerboard pattern not found")

// A Detector finds the inner corners of a checkerboard. Corners are returned row-major: point
// j*patternSize.X + i is the i-th corner of the j-th row. Failures wrap ErrPatternNotFound.
type Detector interface {
	FindCorners(img image.Image, patternSize image.Point) ([]r2.Point, error)
}

// DetectionConfiguration stores the parameters necessary for chessboard detection in an image.
type DetectionConfiguration struct {
	Saddle  SaddleConfiguration  `json:"saddle"`
	Lattice LatticeConfiguration `json:"lattice"`
}

// DefaultDetectionConf returns the default detection parameters.
func DefaultDetectionConf() DetectionConfiguration {
	return DetectionConfiguration{Saddle: DefaultSaddleConf, Lattice: DefaultLatticeConf}
}

// SaddleDetector finds corners as saddle points of the image intensity and groups them into a grid.
type SaddleDetector struct {
	conf   DetectionConfiguration
	logger logging.Logger
}

// NewSaddleDetector returns a pure Go Detector.
func NewSaddleDetector(conf DetectionConfiguration, logger logging.Logger) *SaddleDetector {
	return &SaddleDetector{conf: conf, logger: logger}
}

// FindCorners implements Detector.
func (d *SaddleDetector) FindCorners(img image.Image, patternSize image.Point) ([]r2.Point, error) {
	if patternSize.X < 2 || patternSize.Y < 2 {
		return nil, errors.Errorf("pattern size must be at least 2x2, got %dx%d", patternSize.X, patternSize.Y)
	}
	lum := rimage.ConvertImageToLuminanceFloat(img)
	expected := patternSize.X * patternSize.Y
	candidates, _, err := GetSaddlePoints(lum, expected, &d.conf.Saddle)
	if err != nil {
		return nil, err
	}
	d.logger.Debugw("saddle candidates", "found", len(candidates), "expected", expected)
	if len(candidates) < expected {
		return nil, errors.Wrapf(ErrPatternNotFound, "found %d of %d corners", len(candidates), expected)
	}
	return orderLattice(candidates, patternSize, &d.conf.Lattice)
}

// Detection methods accepted by NewDetector.
const (
	MethodSaddle = "saddle"
	MethodOpenCV = "opencv"
)

// NewDetector returns the detector named by method; an empty method selects the saddle detector.
func NewDetector(method string, conf DetectionConfiguration, logger logging.Logger) (Detector, error) {
	switch method {
	case "", MethodSaddle:
		return NewSaddleDetector(conf, logger), nil
	case MethodOpenCV:
		return newOpenCVDetector()
	default:
		return nil, errors.Errorf("unknown detection method %q", method)
	}
}
