package transform

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"go.viam.com/test"
)

func checkerImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(40)
			if (x/8+y/8)%2 == 0 {
				v = 220
			}
			img.SetNRGBA(x, y, color.NRGBA{v, uint8(x), uint8(y), 255})
		}
	}
	return img
}

func TestRemapIdentity(t *testing.T) {
	model, err := NewPinholeCameraModel(PinholeCameraIntrinsics{
		Width: 64, Height: 48, Fx: 60, Fy: 60, Ppx: 31.7, Ppy: 24.1,
	}, nil)
	test.That(t, err, test.ShouldBeNil)

	img := checkerImage(64, 48)
	out, err := Undistort(img, model)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldResemble, image.Image(img))

	gray := image.NewGray(image.Rect(0, 0, 64, 48))
	for i := range gray.Pix {
		gray.Pix[i] = uint8(i % 251)
	}
	out, err = Undistort(gray, model)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldResemble, image.Image(gray))
}

func TestRemapDeterministic(t *testing.T) {
	model := testModel(t, []float64{-0.28, 0.09, 0.001, -0.002, 0.01})
	img := checkerImage(640, 480)

	table1, err := BuildRemapTable(model, model.Size())
	test.That(t, err, test.ShouldBeNil)
	table2, err := BuildRemapTable(model, model.Size())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, table1, test.ShouldResemble, table2)

	out1, err := ApplyRemap(img, table1)
	test.That(t, err, test.ShouldBeNil)
	out2, err := ApplyRemap(img, table2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out1, test.ShouldResemble, out2)
	test.That(t, out1.Bounds(), test.ShouldResemble, img.Bounds())
}

func TestRemapTableSamplesDistortedPositions(t *testing.T) {
	model := testModel(t, []float64{-0.3, 0, 0, 0, 0})
	table, err := BuildRemapTable(model, model.Size())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, table.Size(), test.ShouldResemble, image.Point{640, 480})

	// barrel distortion: output corners sample from closer to the center
	sx, sy := table.Source(0, 0)
	test.That(t, sx, test.ShouldBeGreaterThan, 0)
	test.That(t, sy, test.ShouldBeGreaterThan, 0)

	distort := model.DistortionMap()
	wantX, wantY := distort(100, 50)
	sx, sy = table.Source(100, 50)
	test.That(t, sx, test.ShouldAlmostEqual, wantX, 1e-3)
	test.That(t, sy, test.ShouldAlmostEqual, wantY, 1e-3)
}

func TestRemapBorderIsBlack(t *testing.T) {
	// strong pincushion pushes the corners of the output outside the input
	model := testModel(t, []float64{0.8, 0, 0, 0, 0})
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	out, err := Undistort(img, model)
	test.That(t, err, test.ShouldBeNil)
	rgba, ok := out.(*image.RGBA)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, rgba.RGBAAt(0, 0), test.ShouldResemble, color.RGBA{0, 0, 0, 255})
	test.That(t, rgba.RGBAAt(320, 240), test.ShouldResemble, color.RGBA{200, 200, 200, 200})
}

func TestRemapConvertsOtherImageTypes(t *testing.T) {
	model := testModel(t, []float64{-0.1, 0, 0, 0, 0})
	img := image.NewGray16(image.Rect(0, 0, 640, 480))
	out, err := Undistort(img, model)
	test.That(t, err, test.ShouldBeNil)
	_, ok := out.(*image.NRGBA)
	test.That(t, ok, test.ShouldBeTrue)
}

func TestRemapDimensionMismatch(t *testing.T) {
	model := testModel(t, nil)
	_, err := BuildRemapTable(model, image.Point{320, 240})
	var mismatch *DimensionMismatchError
	test.That(t, errors.As(err, &mismatch), test.ShouldBeTrue)
	test.That(t, mismatch.Expected, test.ShouldResemble, image.Point{640, 480})
	test.That(t, mismatch.Got, test.ShouldResemble, image.Point{320, 240})

	table, err := BuildRemapTable(model, model.Size())
	test.That(t, err, test.ShouldBeNil)
	_, err = ApplyRemap(image.NewGray(image.Rect(0, 0, 10, 10)), table)
	test.That(t, errors.As(err, &mismatch), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "10x10")
}
