package calibration

import (
	"fmt"
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/logging"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/rimage/transform"
)

// Layout of the intrinsic block of the parameter vector. Each view adds 3 rotation vector and
// 3 translation parameters after it.
const (
	paramFx = iota
	paramFy
	paramCx
	paramCy
	paramK1
	paramK2
	paramP1
	paramP2
	paramK3
	numIntrinsics
)

const numPoseParams = 6

// SolverOptions tune Calibrate.
type SolverOptions struct {
	// FixK3 keeps the sixth order radial term at zero.
	FixK3 bool `json:"fix_k3"`
	// FixTangential keeps p1 and p2 at zero.
	FixTangential bool `json:"fix_tangential"`
	// FixPrincipalPoint keeps the principal point at the image center.
	FixPrincipalPoint bool `json:"fix_principal_point"`
	MaxIterations     int  `json:"max_iterations"`
	MinObservations   int  `json:"min_observations"`
	// Epsilon stops the solver once an iteration lowers the squared error by less than this fraction.
	Epsilon float64 `json:"epsilon"`
}

// DefaultSolverOptions estimates all five distortion coefficients from at least 3 views.
func DefaultSolverOptions() SolverOptions {
	return SolverOptions{MaxIterations: 100, MinObservations: 3, Epsilon: 1e-12}
}

func (opts *SolverOptions) withDefaults() SolverOptions {
	def := DefaultSolverOptions()
	if opts == nil {
		return def
	}
	out := *opts
	if out.MaxIterations <= 0 {
		out.MaxIterations = def.MaxIterations
	}
	if out.MinObservations <= 0 {
		out.MinObservations = def.MinObservations
	}
	if out.Epsilon <= 0 {
		out.Epsilon = def.Epsilon
	}
	return out
}

// Result is a camera model and the board poses it was estimated with.
type Result struct {
	Model *transform.PinholeCameraModel
	// Poses[i] places the board of observation i in the camera frame.
	Poses []transform.Pose
	// MeanReprojectionError is the mean over observations of the mean pixel distance between
	// detected and reprojected corners.
	MeanReprojectionError float64
	// RMSError is the root mean square distance over all corners.
	RMSError float64
	// PerView holds the mean distance of every observation.
	PerView    []float64
	Iterations int
}

// Calibrate estimates the intrinsics, distortion and board poses that best explain observations,
// minimizing the squared pixel distance between detected corners and their reprojections.
// Every observation must have been taken at imageSize.
func Calibrate(observations []Observation, imageSize image.Point, opts *SolverOptions, logger logging.Logger) (*Result, error) {
	o := opts.withDefaults()
	if logger == nil {
		logger = logging.NewBlankLogger("calibration")
	}
	if len(observations) < o.MinObservations {
		return nil, &InsufficientDataError{Have: len(observations), Need: o.MinObservations}
	}
	if imageSize.X <= 0 || imageSize.Y <= 0 {
		return nil, errors.Errorf("invalid image size %dx%d", imageSize.X, imageSize.Y)
	}
	points := 0
	for i, obs := range observations {
		if len(obs.Pattern) != len(obs.Image) {
			return nil, &InconsistentGeometryError{
				Index: i, Expected: imageSize, Got: obs.ImageSize,
				Reason: fmt.Sprintf("%d pattern points paired with %d image points", len(obs.Pattern), len(obs.Image)),
			}
		}
		if obs.ImageSize != imageSize {
			return nil, &InconsistentGeometryError{Index: i, Expected: imageSize, Got: obs.ImageSize}
		}
		if len(obs.Pattern) < 4 {
			return nil, &InsufficientDataError{
				Have: len(observations), Need: o.MinObservations,
				Reason: fmt.Sprintf("observation %d has %d points, at least 4 are needed", i, len(obs.Pattern)),
			}
		}
		for _, p := range obs.Pattern {
			if p.Z != 0 {
				return nil, &InconsistentGeometryError{Index: i, Expected: imageSize, Got: obs.ImageSize, Reason: "pattern is not planar"}
			}
		}
		points += len(obs.Pattern)
	}

	prob := newProblem(observations, o)
	if 2*points < len(prob.free) {
		return nil, &InsufficientDataError{
			Have: len(observations), Need: o.MinObservations,
			Reason: fmt.Sprintf("%d residuals cannot determine %d parameters", 2*points, len(prob.free)),
		}
	}

	x, err := initialGuess(observations, imageSize)
	if err != nil {
		return nil, &InsufficientDataError{Have: len(observations), Need: o.MinObservations, Reason: err.Error()}
	}
	logger.Debugw("initial estimate", "fx", x[paramFx], "fy", x[paramFy], "cx", x[paramCx], "cy", x[paramCy],
		"rms", math.Sqrt(prob.cost(x)/float64(points)))

	iterations, err := prob.levenbergMarquardt(x, o.MaxIterations, o.Epsilon)
	if err != nil {
		return nil, &InsufficientDataError{Have: len(observations), Need: o.MinObservations, Reason: err.Error()}
	}
	if !(x[paramFx] > 0) || !(x[paramFy] > 0) || math.IsInf(x[paramFx], 0) || math.IsInf(x[paramFy], 0) {
		return nil, &InsufficientDataError{
			Have: len(observations), Need: o.MinObservations,
			Reason: fmt.Sprintf("solver diverged to focal lengths %v, %v", x[paramFx], x[paramFy]),
		}
	}

	model, err := transform.NewPinholeCameraModel(transform.PinholeCameraIntrinsics{
		Width:  imageSize.X,
		Height: imageSize.Y,
		Fx:     x[paramFx],
		Fy:     x[paramFy],
		Ppx:    x[paramCx],
		Ppy:    x[paramCy],
	}, x[paramK1:numIntrinsics])
	if err != nil {
		return nil, &InsufficientDataError{Have: len(observations), Need: o.MinObservations, Reason: err.Error()}
	}
	poses := make([]transform.Pose, len(observations))
	for i := range observations {
		poses[i] = poseAt(x, i)
	}
	mean, rms, perView := ReprojectionStats(observations, poses, model)
	logger.Infow("calibration finished", "views", len(observations), "iterations", iterations,
		"mean_error", mean, "rms_error", rms)
	return &Result{
		Model:                 model,
		Poses:                 poses,
		MeanReprojectionError: mean,
		RMSError:              rms,
		PerView:               perView,
		Iterations:            iterations,
	}, nil
}

// initialGuess builds the starting parameter vector: principal point at the image center, focal
// lengths from vanishing points, no distortion, and board poses from the plane homographies.
func initialGuess(observations []Observation, imageSize image.Point) ([]float64, error) {
	homographies := make([]*transform.Homography, len(observations))
	for i, obs := range observations {
		h, err := planeHomography(obs)
		if err != nil {
			return nil, errors.Wrapf(err, "observation %d", i)
		}
		homographies[i] = h
	}
	cx := float64(imageSize.X-1) / 2
	cy := float64(imageSize.Y-1) / 2
	fx, fy, err := initFocal(homographies, cx, cy)
	if err != nil {
		return nil, err
	}
	x := make([]float64, numIntrinsics+numPoseParams*len(observations))
	x[paramFx], x[paramFy], x[paramCx], x[paramCy] = fx, fy, cx, cy
	for i, h := range homographies {
		pose := initPose(h, fx, fy, cx, cy)
		setPose(x, i, pose)
	}
	return x, nil
}

func poseAt(x []float64, view int) transform.Pose {
	p := x[numIntrinsics+numPoseParams*view:]
	return transform.Pose{
		Rotation:    r3.Vector{X: p[0], Y: p[1], Z: p[2]},
		Translation: r3.Vector{X: p[3], Y: p[4], Z: p[5]},
	}
}

func setPose(x []float64, view int, pose transform.Pose) {
	p := x[numIntrinsics+numPoseParams*view:]
	p[0], p[1], p[2] = pose.Rotation.X, pose.Rotation.Y, pose.Rotation.Z
	p[3], p[4], p[5] = pose.Translation.X, pose.Translation.Y, pose.Translation.Z
}

// projectInto writes the pixel coordinates of pattern, placed at pose and seen through the
// intrinsic block intr, into out as x0, y0, x1, y1, ... Points behind the camera are NaN.
func projectInto(out, intr, pose []float64, pattern []r3.Vector) {
	rot := transform.RotationFromVector(r3.Vector{X: pose[0], Y: pose[1], Z: pose[2]})
	t := r3.Vector{X: pose[3], Y: pose[4], Z: pose[5]}
	dist := transform.BrownConrady{
		RadialK1:     intr[paramK1],
		RadialK2:     intr[paramK2],
		TangentialP1: intr[paramP1],
		TangentialP2: intr[paramP2],
		RadialK3:     intr[paramK3],
	}
	for i, p := range pattern {
		c := rot.Apply(p).Add(t)
		if c.Z <= 0 {
			out[2*i], out[2*i+1] = math.NaN(), math.NaN()
			continue
		}
		x, y := dist.Transform(c.X/c.Z, c.Y/c.Z)
		out[2*i] = intr[paramFx]*x + intr[paramCx]
		out[2*i+1] = intr[paramFy]*y + intr[paramCy]
	}
}

// problem is the joint least squares problem over the intrinsics and every board pose.
type problem struct {
	views    []Observation
	observed [][]float64
	offsets  []int
	// free lists the indices of the parameters being estimated.
	free []int
	size int
	m    int
}

func newProblem(views []Observation, opts SolverOptions) *problem {
	p := &problem{views: views, size: numIntrinsics + numPoseParams*len(views)}
	for _, v := range views {
		obs := make([]float64, 2*len(v.Image))
		for i, pt := range v.Image {
			obs[2*i], obs[2*i+1] = pt.X, pt.Y
		}
		p.offsets = append(p.offsets, p.m)
		p.observed = append(p.observed, obs)
		p.m += len(obs)
	}
	fixed := map[int]bool{}
	if opts.FixPrincipalPoint {
		fixed[paramCx], fixed[paramCy] = true, true
	}
	if opts.FixTangential {
		fixed[paramP1], fixed[paramP2] = true, true
	}
	if opts.FixK3 {
		fixed[paramK3] = true
	}
	for i := 0; i < p.size; i++ {
		if !fixed[i] {
			p.free = append(p.free, i)
		}
	}
	return p
}

// viewParams gathers the 15 parameters view v depends on.
func viewParams(dst, x []float64, v int) []float64 {
	dst = append(dst[:0], x[:numIntrinsics]...)
	return append(dst, x[numIntrinsics+numPoseParams*v:numIntrinsics+numPoseParams*(v+1)]...)
}

func (p *problem) viewResiduals(v int) func(y, z []float64) {
	pattern := p.views[v].Pattern
	observed := p.observed[v]
	return func(y, z []float64) {
		projectInto(y, z[:numIntrinsics], z[numIntrinsics:], pattern)
		for i := range y {
			y[i] -= observed[i]
		}
	}
}

// residuals fills r with every reprojection difference.
func (p *problem) residuals(x, r []float64) {
	var z []float64
	for v := range p.views {
		z = viewParams(z, x, v)
		off := p.offsets[v]
		p.viewResiduals(v)(r[off:off+len(p.observed[v])], z)
	}
}

// cost is the sum of squared residuals, +Inf when any point falls behind the camera.
func (p *problem) cost(x []float64) float64 {
	r := make([]float64, p.m)
	p.residuals(x, r)
	var sum float64
	for _, v := range r {
		sum += v * v
	}
	if math.IsNaN(sum) {
		return math.Inf(1)
	}
	return sum
}

// normalEquations returns JᵀJ and Jᵀr over all parameters. Each view only touches the intrinsics
// and its own pose, so its Jacobian is computed on those 15 parameters alone.
func (p *problem) normalEquations(x []float64) (*mat.Dense, []float64) {
	jtj := mat.NewDense(p.size, p.size, nil)
	jtr := make([]float64, p.size)
	settings := &fd.JacobianSettings{Formula: fd.Central}
	local := numIntrinsics + numPoseParams
	var z []float64
	for v := range p.views {
		z = viewParams(z, x, v)
		n := len(p.observed[v])
		f := p.viewResiduals(v)
		jac := mat.NewDense(n, local, nil)
		fd.Jacobian(jac, f, z, settings)
		r := make([]float64, n)
		f(r, z)

		var block mat.Dense
		block.Mul(jac.T(), jac)
		var grad mat.VecDense
		grad.MulVec(jac.T(), mat.NewVecDense(n, r))

		global := func(a int) int {
			if a < numIntrinsics {
				return a
			}
			return numIntrinsics + numPoseParams*v + a - numIntrinsics
		}
		for a := 0; a < local; a++ {
			ga := global(a)
			jtr[ga] += grad.AtVec(a)
			for b := 0; b < local; b++ {
				gb := global(b)
				jtj.Set(ga, gb, jtj.At(ga, gb)+block.At(a, b))
			}
		}
	}
	return jtj, jtr
}

// levenbergMarquardt refines x in place and returns the number of iterations taken.
func (p *problem) levenbergMarquardt(x []float64, maxIterations int, epsilon float64) (int, error) {
	const (
		initialDamping = 1e-3
		maxDamping     = 1e16
		minDamping     = 1e-15
	)
	nf := len(p.free)
	lambda := initialDamping
	cost := p.cost(x)
	if math.IsInf(cost, 1) {
		return 0, errors.New("initial estimate places the board behind the camera")
	}

	candidate := make([]float64, len(x))
	iter := 0
	for ; iter < maxIterations; iter++ {
		jtj, jtr := p.normalEquations(x)
		for _, i := range p.free {
			if !(jtj.At(i, i) > 0) {
				return iter, errors.Errorf("parameter %d is not constrained by the observations", i)
			}
		}

		accepted := false
		var newCost, stepNorm float64
		for !accepted && lambda < maxDamping {
			damped := mat.NewSymDense(nf, nil)
			g := mat.NewVecDense(nf, nil)
			for a, ia := range p.free {
				g.SetVec(a, -jtr[ia])
				for b := a; b < nf; b++ {
					damped.SetSym(a, b, jtj.At(ia, p.free[b]))
				}
				damped.SetSym(a, a, jtj.At(ia, ia)*(1+lambda))
			}
			var chol mat.Cholesky
			if ok := chol.Factorize(damped); !ok {
				lambda *= 10
				continue
			}
			var step mat.VecDense
			if err := chol.SolveVecTo(&step, g); err != nil {
				lambda *= 10
				continue
			}
			copy(candidate, x)
			stepNorm = 0
			for a, ia := range p.free {
				candidate[ia] += step.AtVec(a)
				stepNorm += step.AtVec(a) * step.AtVec(a)
			}
			newCost = p.cost(candidate)
			if candidate[paramFx] > 0 && candidate[paramFy] > 0 && newCost < cost {
				accepted = true
				lambda = math.Max(lambda/10, minDamping)
			} else {
				lambda *= 10
			}
		}
		if !accepted {
			if iter == 0 {
				return iter, errors.New("normal equations are singular")
			}
			break
		}
		copy(x, candidate)
		improvement := cost - newCost
		cost = newCost
		if improvement <= epsilon*cost || math.Sqrt(stepNorm) <= epsilon*(floatsNorm(x)+epsilon) {
			iter++
			break
		}
	}
	return iter, nil
}

func floatsNorm(x []float64) float64 {
	var s float64
	for _, v := range x {
		s += v * v
	}
	return math.Sqrt(s)
}

// ProjectPoints maps pattern, placed at pose, through model into pixel coordinates.
func ProjectPoints(pattern []r3.Vector, pose transform.Pose, model *transform.PinholeCameraModel) []r2.Point {
	return model.ProjectPoints(pattern, pose)
}

// ReprojectionErrors returns the pixel distance between every detected corner of obs and the
// reprojection of its pattern point.
func ReprojectionErrors(obs Observation, pose transform.Pose, model *transform.PinholeCameraModel) []float64 {
	projected := ProjectPoints(obs.Pattern, pose, model)
	out := make([]float64, len(projected))
	for i, p := range projected {
		out[i] = p.Sub(obs.Image[i]).Norm()
	}
	return out
}

// ReprojectionStats returns the mean over observations of each observation's mean reprojection
// error, the RMS error over all corners, and the per observation means.
func ReprojectionStats(observations []Observation, poses []transform.Pose, model *transform.PinholeCameraModel) (float64, float64, []float64) {
	perView := make([]float64, len(observations))
	var sumMeans, sumSquares float64
	var count int
	for i, obs := range observations {
		errs := ReprojectionErrors(obs, poses[i], model)
		var sum float64
		for _, e := range errs {
			sum += e
			sumSquares += e * e
		}
		count += len(errs)
		if len(errs) > 0 {
			perView[i] = sum / float64(len(errs))
		}
		sumMeans += perView[i]
	}
	if len(observations) == 0 || count == 0 {
		return 0, 0, perView
	}
	return sumMeans / float64(len(observations)), math.Sqrt(sumSquares / float64(count)), perView
}
