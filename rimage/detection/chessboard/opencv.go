//go:build opencv

package chessboard

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/rimage"
)

// OpenCVDetector finds corners with OpenCV's findChessboardCorners.
type OpenCVDetector struct {
	Flags gocv.CalibCBFlag
}

// NewOpenCVDetector returns a Detector using adaptive thresholding and image normalization.
func NewOpenCVDetector() *OpenCVDetector {
	return &OpenCVDetector{Flags: gocv.CalibCBAdaptiveThresh | gocv.CalibCBNormalizeImage}
}

// FindCorners implements Detector.
func (d *OpenCVDetector) FindCorners(img image.Image, patternSize image.Point) ([]r2.Point, error) {
	gray := rimage.MakeGray(img)
	b := gray.Bounds()
	src, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC1, gray.Pix)
	if err != nil {
		return nil, errors.Wrap(err, "converting image for OpenCV")
	}
	defer src.Close()

	corners := gocv.NewMat()
	defer corners.Close()
	if !gocv.FindChessboardCorners(src, patternSize, &corners, d.Flags) {
		return nil, ErrPatternNotFound
	}
	if corners.Rows() != patternSize.X*patternSize.Y {
		return nil, errors.Wrapf(ErrPatternNotFound, "OpenCV returned %d corners", corners.Rows())
	}
	out := make([]r2.Point, corners.Rows())
	for i := range out {
		v := corners.GetVecfAt(i, 0)
		out[i] = r2.Point{X: float64(v[0]), Y: float64(v[1])}
	}
	return out, nil
}

func newOpenCVDetector() (Detector, error) {
	return NewOpenCVDetector(), nil
}
