package calibration

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/rimage/transform"
)

// EstimatePose finds the board pose of obs for a camera whose model is already known. The pose is
// initialised from the homography of the undistorted corners and then refined with RefinePose.
func EstimatePose(model *transform.PinholeCameraModel, obs Observation) (transform.Pose, error) {
	if err := model.CheckValid(); err != nil {
		return transform.Pose{}, err
	}
	if len(obs.Pattern) != len(obs.Image) || len(obs.Pattern) < 4 {
		return transform.Pose{}, errors.Errorf("need at least 4 paired points, got %d and %d", len(obs.Pattern), len(obs.Image))
	}
	plane := make([]r2.Point, len(obs.Pattern))
	ideal := make([]r2.Point, len(obs.Image))
	for i, p := range obs.Pattern {
		plane[i] = r2.Point{X: p.X, Y: p.Y}
		ideal[i] = model.UndistortPoint(obs.Image[i])
	}
	h, err := transform.EstimateHomography(plane, ideal)
	if err != nil {
		return transform.Pose{}, err
	}
	initial := initPose(h, model.Fx, model.Fy, model.Ppx, model.Ppy)
	return RefinePose(model, obs, initial)
}

// RefinePose minimizes the reprojection error of obs over the board pose alone, keeping the
// camera model fixed.
func RefinePose(model *transform.PinholeCameraModel, obs Observation, initial transform.Pose) (transform.Pose, error) {
	intr := []float64{
		model.Fx, model.Fy, model.Ppx, model.Ppy,
	}
	intr = append(intr, model.DistortionCoefficients()...)
	observed := make([]float64, 2*len(obs.Image))
	for i, p := range obs.Image {
		observed[2*i], observed[2*i+1] = p.X, p.Y
	}
	projected := make([]float64, len(observed))
	cost := func(x []float64) float64 {
		projectInto(projected, intr, x, obs.Pattern)
		var sum float64
		for i, v := range projected {
			d := v - observed[i]
			sum += d * d
		}
		if math.IsNaN(sum) {
			return math.Inf(1)
		}
		return sum
	}
	gradSettings := &fd.Settings{Formula: fd.Central}
	p := optimize.Problem{
		Func: cost,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, cost, x, gradSettings)
		},
	}

	x0 := []float64{
		initial.Rotation.X, initial.Rotation.Y, initial.Rotation.Z,
		initial.Translation.X, initial.Translation.Y, initial.Translation.Z,
	}
	f0 := cost(x0)
	if math.IsInf(f0, 1) {
		return transform.Pose{}, errors.New("initial pose places the board behind the camera")
	}
	result, err := optimize.Minimize(p, x0, &optimize.Settings{MajorIterations: 500}, &optimize.BFGS{})
	if result == nil || !(result.F <= f0) {
		if err == nil {
			err = errors.New("pose refinement did not improve the estimate")
		}
		return transform.Pose{}, errors.Wrap(err, "pose refinement failed")
	}
	x := result.X
	return transform.Pose{
		Rotation:    r3.Vector{X: x[0], Y: x[1], Z: x[2]},
		Translation: r3.Vector{X: x[3], Y: x[4], Z: x[5]},
	}, nil
}

// Evaluation measures how well an existing model explains new observations.
type Evaluation struct {
	Poses                 []transform.Pose
	PerView               []float64
	MeanReprojectionError float64
	RMSError              float64
}

// EvaluateModel estimates a pose for every observation with the intrinsics held fixed and reports
// the resulting reprojection errors.
func EvaluateModel(model *transform.PinholeCameraModel, observations []Observation) (*Evaluation, error) {
	poses := make([]transform.Pose, len(observations))
	for i, obs := range observations {
		if obs.ImageSize != model.Size() {
			return nil, &InconsistentGeometryError{Index: i, Expected: model.Size(), Got: obs.ImageSize}
		}
		pose, err := EstimatePose(model, obs)
		if err != nil {
			return nil, errors.Wrapf(err, "observation %d", i)
		}
		poses[i] = pose
	}
	mean, rms, perView := ReprojectionStats(observations, poses, model)
	return &Evaluation{Poses: poses, PerView: perView, MeanReprojectionError: mean, RMSError: rms}, nil
}
