package chessboard

import (
	"image"
	"image/color"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func TestDrawCorners(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 100, 80))
	corners := affineGrid(3, 2, r2.Point{X: 20, Y: 20}, r2.Point{X: 20, Y: 0}, r2.Point{X: 0, Y: 20})

	out := DrawCorners(img, image.Point{3, 2}, corners, true)
	test.That(t, out.Bounds(), test.ShouldResemble, img.Bounds())
	// circle outline of the first corner in the first row color
	r, g, b, _ := out.At(24, 20).RGBA()
	test.That(t, r>>8, test.ShouldBeGreaterThan, 100)
	test.That(t, g>>8, test.ShouldBeLessThan, 100)
	test.That(t, b>>8, test.ShouldBeLessThan, 100)
	// the input is not modified
	test.That(t, img.GrayAt(24, 20), test.ShouldResemble, color.Gray{0})

	out = DrawCorners(img, image.Point{3, 3}, corners, false)
	r, _, _, _ = out.At(24, 20).RGBA()
	test.That(t, r>>8, test.ShouldBeGreaterThan, 100)

	out = DrawCorners(img, image.Point{3, 2}, nil, false)
	r, _, _, _ = out.At(24, 20).RGBA()
	test.That(t, r, test.ShouldEqual, 0)
}
