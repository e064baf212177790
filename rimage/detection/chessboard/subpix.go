package chessboard

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/rimage"
)

// TermCriteria stops an iterative refinement after MaxIterations or once a step moves less than
// Epsilon pixels, whichever comes first.
type TermCriteria struct {
	MaxIterations int     `json:"max_iterations"`
	Epsilon       float64 `json:"epsilon"`
}

// SubPixConfiguration holds the sub-pixel corner refinement settings.
type SubPixConfiguration struct {
	// Window is the half size of the search window; the window spans 2*Window+1 pixels.
	Window   int          `json:"window"`
	Criteria TermCriteria `json:"criteria"`
}

// DefaultSubPixConf is a 41x41 window refined for at most 30 iterations or until the corner moves
// less than 0.1 pixel.
var DefaultSubPixConf = SubPixConfiguration{
	Window:   20,
	Criteria: TermCriteria{MaxIterations: 30, Epsilon: 0.1},
}

// ClampWindow shrinks a search window so it never reaches a neighbouring corner of the grid:
// the result is at most 40% of the smallest distance between adjacent corners and at least 2.
func ClampWindow(window int, corners []r2.Point, patternSize image.Point) int {
	w, h := patternSize.X, patternSize.Y
	if len(corners) != w*h {
		return window
	}
	spacing := math.Inf(1)
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			p := corners[j*w+i]
			if i+1 < w {
				spacing = math.Min(spacing, p.Sub(corners[j*w+i+1]).Norm())
			}
			if j+1 < h {
				spacing = math.Min(spacing, p.Sub(corners[(j+1)*w+i]).Norm())
			}
		}
	}
	if math.IsInf(spacing, 1) {
		return window
	}
	limit := int(0.4 * spacing)
	if limit < 2 {
		limit = 2
	}
	if window > limit {
		return limit
	}
	return window
}

// CornerSubPix refines corner locations in a luminance image. Each corner moves to the point q
// where the image gradient at every pixel p of the window is orthogonal to p - q, which holds
// exactly at the vertex of a checkerboard X junction. Corners that would leave their window keep
// their input position.
func CornerSubPix(lum *mat.Dense, corners []r2.Point, window int, criteria TermCriteria) []r2.Point {
	gx, gy := centralGradients(lum)
	h, w := lum.Dims()

	weights := make([]float64, 2*window+1)
	for i := range weights {
		x := float64(i-window) / float64(window)
		weights[i] = math.Exp(-x * x)
	}

	out := make([]r2.Point, len(corners))
	for ci, start := range corners {
		q := start
		for iter := 0; iter < criteria.MaxIterations; iter++ {
			var a11, a12, a22, b1, b2 float64
			for dy := -window; dy <= window; dy++ {
				for dx := -window; dx <= window; dx++ {
					p := r2.Point{X: q.X + float64(dx), Y: q.Y + float64(dy)}
					if p.X < 0 || p.Y < 0 || p.X > float64(w-1) || p.Y > float64(h-1) {
						continue
					}
					wt := weights[dx+window] * weights[dy+window]
					ix := rimage.BilinearInterpolationFloat(gx, p)
					iy := rimage.BilinearInterpolationFloat(gy, p)
					gxx, gxy, gyy := wt*ix*ix, wt*ix*iy, wt*iy*iy
					a11 += gxx
					a12 += gxy
					a22 += gyy
					b1 += gxx*p.X + gxy*p.Y
					b2 += gxy*p.X + gyy*p.Y
				}
			}
			det := a11*a22 - a12*a12
			if math.Abs(det) < 1e-12 {
				break
			}
			next := r2.Point{
				X: (a22*b1 - a12*b2) / det,
				Y: (a11*b2 - a12*b1) / det,
			}
			moved := next.Sub(q).Norm()
			q = next
			if moved < criteria.Epsilon {
				break
			}
		}
		if math.Abs(q.X-start.X) > float64(window) || math.Abs(q.Y-start.Y) > float64(window) ||
			math.IsNaN(q.X) || math.IsNaN(q.Y) {
			q = start
		}
		out[ci] = q
	}
	return out
}

// centralGradients returns the x and y derivatives of m by central differences.
func centralGradients(m *mat.Dense) (*mat.Dense, *mat.Dense) {
	h, w := m.Dims()
	gx := mat.NewDense(h, w, nil)
	gy := mat.NewDense(h, w, nil)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			x0, x1 := max(x-1, 0), min(x+1, w-1)
			y0, y1 := max(y-1, 0), min(y+1, h-1)
			gx.Set(y, x, (m.At(y, x1)-m.At(y, x0))/float64(max(x1-x0, 1)))
			gy.Set(y, x, (m.At(y1, x)-m.At(y0, x))/float64(max(y1-y0, 1)))
		}
	}
	return gx, gy
}
