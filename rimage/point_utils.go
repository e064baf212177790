package rimage

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

// BilinearInterpolationFloat samples m (rows are image rows) at a sub-pixel position. Positions
// outside the image are clamped to the nearest edge.
func BilinearInterpolationFloat(m *mat.Dense, pt r2.Point) float64 {
	h, w := m.Dims()
	raw := m.RawMatrix()
	x := math.Max(0, math.Min(pt.X, float64(w-1)))
	y := math.Max(0, math.Min(pt.Y, float64(h-1)))
	x0, y0 := int(x), int(y)
	x1, y1 := clampIndex(x0+1, w), clampIndex(y0+1, h)
	ax, ay := x-float64(x0), y-float64(y0)

	top := raw.Data[y0*raw.Stride+x0]*(1-ax) + raw.Data[y0*raw.Stride+x1]*ax
	bottom := raw.Data[y1*raw.Stride+x0]*(1-ax) + raw.Data[y1*raw.Stride+x1]*ax
	return top*(1-ay) + bottom*ay
}

// PointDistance calculates the distance between two points.
func PointDistance(a, b r2.Point) float64 {
	return a.Sub(b).Norm()
}

// BoundingBox returns the smallest integer rectangle containing every point.
func BoundingBox(pts []r2.Point) image.Rectangle {
	if len(pts) == 0 {
		return image.Rectangle{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	return image.Rect(int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX))+1, int(math.Ceil(maxY))+1)
}

// AllPointsIn returns true if all points are within the rectangle [0, size).
func AllPointsIn(size image.Point, pts []r2.Point) bool {
	for _, p := range pts {
		if p.X < 0 || p.Y < 0 || p.X > float64(size.X-1) || p.Y > float64(size.Y-1) {
			return false
		}
	}
	return true
}
