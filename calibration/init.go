package calibration

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/rimage/transform"
)

// planeHomography maps the board plane of obs onto its image points.
func planeHomography(obs Observation) (*transform.Homography, error) {
	plane := make([]r2.Point, len(obs.Pattern))
	for i, p := range obs.Pattern {
		plane[i] = r2.Point{X: p.X, Y: p.Y}
	}
	return transform.EstimateHomography(plane, obs.Image)
}

// initFocal estimates the focal lengths from the vanishing points of the board axes, with the
// principal point fixed at (cx, cy). Every view contributes two linear constraints on 1/fx² and
// 1/fy²: the board axes are orthogonal and of equal length.
func initFocal(homographies []*transform.Homography, cx, cy float64) (float64, float64, error) {
	n := len(homographies)
	a := mat.NewDense(2*n, 2, nil)
	b := mat.NewVecDense(2*n, nil)
	for i, h := range homographies {
		col := func(c int) r3.Vector {
			return r3.Vector{X: h[0][c] - cx*h[2][c], Y: h[1][c] - cy*h[2][c], Z: h[2][c]}
		}
		h1, h2 := col(0), col(1)
		rows := [2][3]float64{
			{h1.X * h2.X, h1.Y * h2.Y, -h1.Z * h2.Z},
			{h1.X*h1.X - h2.X*h2.X, h1.Y*h1.Y - h2.Y*h2.Y, -(h1.Z*h1.Z - h2.Z*h2.Z)},
		}
		for k, row := range rows {
			norm := math.Sqrt(row[0]*row[0] + row[1]*row[1] + row[2]*row[2])
			if norm == 0 {
				norm = 1
			}
			a.Set(2*i+k, 0, row[0]/norm)
			a.Set(2*i+k, 1, row[1]/norm)
			b.SetVec(2*i+k, row[2]/norm)
		}
	}

	var uv mat.VecDense
	if err := uv.SolveVec(a, b); err == nil {
		u, v := uv.AtVec(0), uv.AtVec(1)
		if u > 0 && v > 0 {
			return 1 / math.Sqrt(u), 1 / math.Sqrt(v), nil
		}
	}

	// Fall back to a single focal length for nearly fronto-parallel view sets.
	var num, den float64
	for i := 0; i < 2*n; i++ {
		s := a.At(i, 0) + a.At(i, 1)
		num += s * b.AtVec(i)
		den += s * s
	}
	if den > 0 && num/den > 0 {
		f := 1 / math.Sqrt(num/den)
		return f, f, nil
	}
	return 0, 0, errors.New("views do not constrain the focal length")
}

// initPose recovers the board pose from its homography given the intrinsics.
func initPose(h *transform.Homography, fx, fy, cx, cy float64) transform.Pose {
	col := func(c int) r3.Vector {
		return r3.Vector{
			X: (h[0][c] - cx*h[2][c]) / fx,
			Y: (h[1][c] - cy*h[2][c]) / fy,
			Z: h[2][c],
		}
	}
	h1, h2, h3 := col(0), col(1), col(2)
	scale := 2 / (h1.Norm() + h2.Norm())
	r1, r2, t := h1.Mul(scale), h2.Mul(scale), h3.Mul(scale)
	if t.Z < 0 {
		r1, r2, t = r1.Mul(-1), r2.Mul(-1), t.Mul(-1)
	}
	r3v := r1.Cross(r2)
	rot := mat.NewDense(3, 3, []float64{
		r1.X, r2.X, r3v.X,
		r1.Y, r2.Y, r3v.Y,
		r1.Z, r2.Z, r3v.Z,
	})
	return transform.Pose{Rotation: nearestRotation(rot).ToVector(), Translation: t}
}

// nearestRotation projects m onto the rotation matrices in the Frobenius sense.
func nearestRotation(m *mat.Dense) transform.RotationMatrix {
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDFull) {
		return transform.IdentityRotation()
	}
	var u, v, r mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		r.Mul(&u, v.T())
	}
	return transform.RotationFromDense(&r)
}
