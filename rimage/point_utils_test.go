package rimage

import (
	"image"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestBilinearInterpolationFloat(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{
		0, 1,
		2, 3,
	})
	test.That(t, BilinearInterpolationFloat(m, r2.Point{X: 0, Y: 0}), test.ShouldEqual, 0)
	test.That(t, BilinearInterpolationFloat(m, r2.Point{X: 1, Y: 0}), test.ShouldEqual, 1)
	test.That(t, BilinearInterpolationFloat(m, r2.Point{X: 0.5, Y: 0.5}), test.ShouldAlmostEqual, 1.5)
	test.That(t, BilinearInterpolationFloat(m, r2.Point{X: 0.25, Y: 1}), test.ShouldAlmostEqual, 2.25)
	// clamped to the nearest edge
	test.That(t, BilinearInterpolationFloat(m, r2.Point{X: 5, Y: 5}), test.ShouldEqual, 3)
	test.That(t, BilinearInterpolationFloat(m, r2.Point{X: -3, Y: 0.5}), test.ShouldAlmostEqual, 1)
}

func TestPointDistance(t *testing.T) {
	test.That(t, PointDistance(r2.Point{X: 1, Y: 1}, r2.Point{X: 4, Y: 5}), test.ShouldAlmostEqual, 5)
}

func TestBoundingBox(t *testing.T) {
	test.That(t, BoundingBox(nil), test.ShouldResemble, image.Rectangle{})
	box := BoundingBox([]r2.Point{{X: 1.5, Y: 2.2}, {X: 3, Y: 0.5}})
	test.That(t, box, test.ShouldResemble, image.Rect(1, 0, 4, 4))
}

func TestAllPointsIn(t *testing.T) {
	size := image.Point{10, 8}
	test.That(t, AllPointsIn(size, nil), test.ShouldBeTrue)
	test.That(t, AllPointsIn(size, []r2.Point{{X: 0, Y: 0}, {X: 9, Y: 7}}), test.ShouldBeTrue)
	test.That(t, AllPointsIn(size, []r2.Point{{X: 9.5, Y: 1}}), test.ShouldBeFalse)
	test.That(t, AllPointsIn(size, []r2.Point{{X: 2, Y: -0.1}}), test.ShouldBeFalse)
}
