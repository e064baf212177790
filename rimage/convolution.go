package rimage

import (
	"image"

	"gonum.org/v1/gonum/mat"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/utils"
)

// Kernel is a convolution matrix applied around an anchor at its center.
type Kernel struct {
	Content [][]float64
	Height  int
	Width   int
}

// Size returns the kernel dimensions as (width, height).
func (k *Kernel) Size() image.Point {
	return image.Point{k.Width, k.Height}
}

// At returns the kernel weight at column x, row y.
func (k *Kernel) At(x, y int) float64 {
	return k.Content[y][x]
}

// GetSobelX returns the Kernel corresponding to the Sobel kernel in the x direction.
func GetSobelX() Kernel {
	return Kernel{[][]float64{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	},
		3,
		3,
	}
}

// GetSobelY returns the Kernel corresponding to the Sobel kernel in the y direction.
func GetSobelY() Kernel {
	return Kernel{[][]float64{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	},
		3,
		3,
	}
}

// ConvolveGrayFloat64 implements a gray float64 image convolution with the Kernel filter.
// There is no clamping of the result; pixels past the border repeat the edge value.
func ConvolveGrayFloat64(m *mat.Dense, filter *Kernel) (*mat.Dense, error) {
	h, w := m.Dims()
	if filter.Width <= 0 || filter.Height <= 0 {
		return nil, errEmptyKernel
	}
	result := mat.NewDense(h, w, nil)
	src := m.RawMatrix()
	dst := result.RawMatrix()
	xRange := makeRangeArray(filter.Width)
	yRange := makeRangeArray(filter.Height)

	utils.ParallelForEachRow(h, func(y int) {
		for x := 0; x < w; x++ {
			sum := float64(0)
			for ky, dy := range yRange {
				row := clampIndex(y+dy, h) * src.Stride
				for kx, dx := range xRange {
					sum += src.Data[row+clampIndex(x+dx, w)] * filter.At(kx, ky)
				}
			}
			dst.Data[y*dst.Stride+x] = sum
		}
	})
	return result, nil
}
