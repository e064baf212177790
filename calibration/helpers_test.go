package calibration

import (
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/rimage/transform"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/testutils"
)

var testBoard = testutils.SyntheticBoard{Cols: 9, Rows: 6, SquareSize: 25}

// syntheticObservations projects the board through model at n spread out poses and adds
// gaussian noise with the given standard deviation in pixels.
func syntheticObservations(
	t *testing.T, model *transform.PinholeCameraModel, n int, noise float64,
) ([]Observation, []transform.Pose) {
	t.Helper()
	renderer := testutils.NewBoardRenderer(model, testBoard)
	poses := renderer.SyntheticPoses(n)
	rng := rand.New(rand.NewSource(42))
	pattern := GeneratePattern(testBoard.Cols, testBoard.Rows, testBoard.SquareSize)
	observations := make([]Observation, n)
	for i, pose := range poses {
		corners := renderer.Corners(pose)
		for k := range corners {
			corners[k] = corners[k].Add(r2.Point{X: rng.NormFloat64() * noise, Y: rng.NormFloat64() * noise})
		}
		obs, err := NewObservation(pattern, corners, model.Size(), i)
		test.That(t, err, test.ShouldBeNil)
		observations[i] = obs
	}
	return observations, poses
}

// tangentialCamera has every distortion term in play.
func tangentialCamera(t *testing.T) *transform.PinholeCameraModel {
	t.Helper()
	model, err := transform.NewPinholeCameraModel(transform.PinholeCameraIntrinsics{
		Width: 640, Height: 480, Fx: 520, Fy: 515, Ppx: 322.5, Ppy: 236,
	}, []float64{-0.21, 0.07, 0.001, -0.0015, -0.01})
	test.That(t, err, test.ShouldBeNil)
	return model
}

func vec(x, y, z float64) r3.Vector {
	return r3.Vector{X: x, Y: y, Z: z}
}
