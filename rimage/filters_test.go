package rimage

import (
	"testing"

	"go.viam.com/test"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestMakeRangeArray(t *testing.T) {
	test.That(t, makeRangeArray(0), test.ShouldResemble, []int{})
	test.That(t, makeRangeArray(1), test.ShouldResemble, []int{0})
	test.That(t, makeRangeArray(3), test.ShouldResemble, []int{-1, 0, 1})
	test.That(t, makeRangeArray(4), test.ShouldResemble, []int{-2, -1, 0, 1})
	test.That(t, makeRangeArray(5), test.ShouldResemble, []int{-2, -1, 0, 1, 2})
}

func TestGaussianKernel1D(t *testing.T) {
	test.That(t, GaussianKernel1D(0), test.ShouldResemble, []float64{1})

	k := GaussianKernel1D(1)
	test.That(t, len(k), test.ShouldEqual, 7)
	test.That(t, floats.Sum(k), test.ShouldAlmostEqual, 1, 1e-12)
	for i := range k {
		test.That(t, k[i], test.ShouldAlmostEqual, k[len(k)-1-i], 1e-15)
	}
	test.That(t, k[3], test.ShouldBeGreaterThan, k[2])
	test.That(t, k[2], test.ShouldBeGreaterThan, k[1])
}

func TestGaussianBlurFloat64(t *testing.T) {
	flat := mat.NewDense(5, 8, nil)
	for i := 0; i < 5; i++ {
		for j := 0; j < 8; j++ {
			flat.Set(i, j, 42)
		}
	}
	blurred := GaussianBlurFloat64(flat, 1.5)
	test.That(t, mat.EqualApprox(blurred, flat, 1e-9), test.ShouldBeTrue)

	spike := mat.NewDense(9, 9, nil)
	spike.Set(4, 4, 100)
	blurred = GaussianBlurFloat64(spike, 1)
	test.That(t, mat.Sum(blurred), test.ShouldAlmostEqual, 100, 1e-9)
	test.That(t, blurred.At(4, 4), test.ShouldBeLessThan, 100)
	test.That(t, blurred.At(4, 3), test.ShouldAlmostEqual, blurred.At(3, 4), 1e-12)
}

func TestConvolveGrayFloat64(t *testing.T) {
	ramp := mat.NewDense(4, 6, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < 6; j++ {
			ramp.Set(i, j, float64(j))
		}
	}
	sobelX := GetSobelX()
	gx, err := ConvolveGrayFloat64(ramp, &sobelX)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, gx.At(1, 2), test.ShouldEqual, 8)
	test.That(t, gx.At(0, 0), test.ShouldEqual, 4)
	test.That(t, gx.At(3, 5), test.ShouldEqual, 4)

	sobelY := GetSobelY()
	gy, err := ConvolveGrayFloat64(ramp, &sobelY)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mat.Sum(gy), test.ShouldEqual, 0)

	_, err = ConvolveGrayFloat64(ramp, &Kernel{})
	test.That(t, err, test.ShouldEqual, errEmptyKernel)
}
