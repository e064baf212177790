package transform

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Homography is a 3x3 matrix (represented as a 2D array) used to transform one plane into another
// under perspective projection, e.g. a planar target into an image. Indices are [row][column].
type Homography [3][3]float64

// NewHomography creates a Homography from a row-major slice of 9 values.
func NewHomography(vals []float64) (*Homography, error) {
	if len(vals) != 9 {
		return nil, errors.Errorf("input to NewHomography must have length of 9. Has length of %d", len(vals))
	}
	h := &Homography{}
	for i, v := range vals {
		h[i/3][i%3] = v
	}
	return h, nil
}

// At returns the value of the homography at the specified indices.
func (h *Homography) At(row, col int) float64 {
	return h[row][col]
}

// Dense returns a copy of the homography as a gonum matrix.
func (h *Homography) Dense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		h[0][0], h[0][1], h[0][2],
		h[1][0], h[1][1], h[1][2],
		h[2][0], h[2][1], h[2][2],
	})
}

// Apply maps a point through the homography.
func (h *Homography) Apply(pt r2.Point) r2.Point {
	x := h.At(0, 0)*pt.X + h.At(0, 1)*pt.Y + h.At(0, 2)
	y := h.At(1, 0)*pt.X + h.At(1, 1)*pt.Y + h.At(1, 2)
	z := h.At(2, 0)*pt.X + h.At(2, 1)*pt.Y + h.At(2, 2)
	return r2.Point{X: x / z, Y: y / z}
}

// Inverse returns the inverse homography, scaled so that [2][2] is 1 when possible.
func (h *Homography) Inverse() (*Homography, error) {
	a, b, c := h[0][0], h[0][1], h[0][2]
	d, e, f := h[1][0], h[1][1], h[1][2]
	g, k, l := h[2][0], h[2][1], h[2][2]
	c00 := e*l - f*k
	c01 := -(d*l - f*g)
	c02 := d*k - e*g
	det := a*c00 + b*c01 + c*c02
	if det == 0 || math.IsNaN(det) || math.IsInf(det, 0) {
		return nil, errors.New("homography is singular")
	}
	inv := &Homography{
		{c00 / det, -(b*l - c*k) / det, (b*f - c*e) / det},
		{c01 / det, (a*l - c*g) / det, -(a*f - c*d) / det},
		{c02 / det, -(a*k - b*g) / det, (a*e - b*d) / det},
	}
	inv.normalize()
	return inv, nil
}

func (h *Homography) normalize() {
	s := h[2][2]
	if s == 0 || math.Abs(s) < 1e-300 {
		return
	}
	for i := range h {
		for j := range h[i] {
			h[i][j] /= s
		}
	}
}

func (h *Homography) String() string {
	return fmt.Sprintf("%v", [3][3]float64(*h))
}

// EstimateHomography finds the homography mapping src[i] onto dst[i] by the normalized direct
// linear transform. At least 4 correspondences in general position are required.
func EstimateHomography(src, dst []r2.Point) (*Homography, error) {
	if len(src) != len(dst) {
		return nil, errors.Errorf("point lists differ in length (%d vs %d)", len(src), len(dst))
	}
	if len(src) < 4 {
		return nil, errors.Errorf("need at least 4 correspondences to estimate a homography, got %d", len(src))
	}
	srcT, srcN := conditionPoints(src)
	dstT, dstN := conditionPoints(dst)

	n := len(src)
	a := mat.NewDense(2*n, 9, nil)
	for i := 0; i < n; i++ {
		x, y := srcN[i].X, srcN[i].Y
		u, v := dstN[i].X, dstN[i].Y
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return nil, errors.New("homography SVD did not converge")
	}
	values := svd.Values(nil)
	// Rank below 8 means the points do not pin the plane down (e.g. they are collinear).
	if len(values) < 8 || values[7] <= 1e-10*values[0] {
		return nil, errors.New("points are degenerate, cannot estimate homography")
	}
	var v mat.Dense
	svd.VTo(&v)

	hn := mat.NewDense(3, 3, nil)
	for i := 0; i < 9; i++ {
		hn.Set(i/3, i%3, v.At(i, 8))
	}

	var dstInv mat.Dense
	if err := dstInv.Inverse(dstT); err != nil {
		return nil, errors.Wrap(err, "cannot invert point conditioning")
	}
	var tmp, full mat.Dense
	tmp.Mul(&dstInv, hn)
	full.Mul(&tmp, srcT)

	h := &Homography{}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			h[i][j] = full.At(i, j)
		}
	}
	if math.Abs(h[2][2]) < 1e-12 {
		return nil, errors.New("homography maps the plane to infinity")
	}
	h.normalize()
	return h, nil
}

// conditionPoints moves the centroid to the origin and scales the mean distance to sqrt(2).
func conditionPoints(pts []r2.Point) (*mat.Dense, []r2.Point) {
	var c r2.Point
	for _, p := range pts {
		c = c.Add(p)
	}
	c = c.Mul(1 / float64(len(pts)))
	mean := 0.
	for _, p := range pts {
		mean += p.Sub(c).Norm()
	}
	mean /= float64(len(pts))
	s := 1.
	if mean > 0 {
		s = math.Sqrt2 / mean
	}
	out := make([]r2.Point, len(pts))
	for i, p := range pts {
		out[i] = p.Sub(c).Mul(s)
	}
	return mat.NewDense(3, 3, []float64{
		s, 0, -s * c.X,
		0, s, -s * c.Y,
		0, 0, 1,
	}), out
}
