package rimage

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/utils"
)

// Helper function for convolving matrices together, When used with i, dx := range makeRangeArray(n)
// i is the position within the kernel and dx gives the offset within the image.
// if length is even, then the origin is to the right of middle i.e. 4 -> {-2, -1, 0, 1}.
func makeRangeArray(length int) []int {
	if length <= 0 {
		return make([]int, 0)
	}
	rangeArray := make([]int, length)
	var span int
	if length%2 == 0 {
		oddArr := makeRangeArray(length - 1)
		span = length / 2
		rangeArray = append([]int{-span}, oddArr...)
	} else {
		span = (length - 1) / 2
		for i := 0; i < span; i++ {
			rangeArray[length-1-i] = span - i
			rangeArray[i] = -span + i
		}
	}
	return rangeArray
}

// GaussianFunction1D takes in a sigma and returns a gaussian function useful for weighing averages or blurring.
func GaussianFunction1D(sigma float64) func(p float64) float64 {
	if sigma <= 0. {
		return func(p float64) float64 {
			return 1.
		}
	}
	return func(p float64) float64 {
		return math.Exp(-0.5*math.Pow(p, 2)/math.Pow(sigma, 2)) / (sigma * math.Sqrt(2.*math.Pi))
	}
}

// GaussianKernel1D returns a normalized, odd length gaussian covering 3 sigma on each side.
func GaussianKernel1D(sigma float64) []float64 {
	if sigma <= 0 {
		return []float64{1}
	}
	gaus := GaussianFunction1D(sigma)
	k := 1 + 2*int(math.Ceil(3.*sigma))
	kernel := make([]float64, k)
	var sum float64
	for i, x := range makeRangeArray(k) {
		kernel[i] = gaus(float64(x))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// GaussianBlurFloat64 blurs a float image with a separable gaussian. Pixels past the border
// repeat the edge value.
func GaussianBlurFloat64(m *mat.Dense, sigma float64) *mat.Dense {
	kernel := GaussianKernel1D(sigma)
	offsets := makeRangeArray(len(kernel))
	h, w := m.Dims()
	src := m.RawMatrix()
	tmp := make([]float64, h*w)
	out := mat.NewDense(h, w, nil)
	dst := out.RawMatrix()

	utils.ParallelForEachRow(h, func(y int) {
		row := src.Data[y*src.Stride : y*src.Stride+w]
		for x := 0; x < w; x++ {
			var sum float64
			for i, dx := range offsets {
				sum += kernel[i] * row[clampIndex(x+dx, w)]
			}
			tmp[y*w+x] = sum
		}
	})
	utils.ParallelForEachRow(h, func(y int) {
		for x := 0; x < w; x++ {
			var sum float64
			for i, dy := range offsets {
				sum += kernel[i] * tmp[clampIndex(y+dy, h)*w+x]
			}
			dst.Data[y*dst.Stride+x] = sum
		}
	})
	return out
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
