//go:build !opencv

package chessboard

import "github.com/pkg/errors"

func newOpenCVDetector() (Detector, error) {
	return nil, errors.New("opencv detection requires a build with -tags opencv")
}
