package chessboard

import (
	"math"
	"sort"

	"github.com/golang/geo/r2"
	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/rimage"
)

// SaddleConfiguration stores the parameters to process the Hessian determinant image into a relevant saddle points map.
type SaddleConfiguration struct {
	BlurSigma         float64 `json:"blur_sigma"`         // gaussian blur applied before differentiation
	NMSRadius         int     `json:"nms_radius"`         // half size of the non-maximum suppression window
	RelativeThreshold float64 `json:"relative_threshold"` // fraction of the typical corner response a saddle must reach
	RingRadius        float64 `json:"ring_radius"`        // radius of the circle sampled around each candidate
	MinContrast       float64 `json:"min_contrast"`       // minimum gray level spread on the ring
}

// DefaultSaddleConf stores the default parameters for saddle detection.
var DefaultSaddleConf = SaddleConfiguration{
	BlurSigma:         1.5,
	NMSRadius:         3,
	RelativeThreshold: 0.35,
	RingRadius:        5,
	MinContrast:       20,
}

const ringSamples = 24

// saddle is a saddle map local maximum.
type saddle struct {
	pt       r2.Point
	response float64
}

// computePixelWiseHessianDeterminant computes hessian components for each pixel and returns a *mat.Dense containing
// the value of the determinant of the Hessian for each pixel.
// The sign and value of the determinant of the Hessian gives location of saddle points.
func computePixelWiseHessianDeterminant(img *mat.Dense) (*mat.Dense, error) {
	nRows, nCols := img.Dims()
	sobelX := rimage.GetSobelX()
	sobelY := rimage.GetSobelY()
	gX, err := rimage.ConvolveGrayFloat64(img, &sobelX)
	if err != nil {
		return nil, err
	}
	gY, err := rimage.ConvolveGrayFloat64(img, &sobelY)
	if err != nil {
		return nil, err
	}
	gXX, err := rimage.ConvolveGrayFloat64(gX, &sobelX)
	if err != nil {
		return nil, err
	}
	gYY, err := rimage.ConvolveGrayFloat64(gY, &sobelY)
	if err != nil {
		return nil, err
	}
	gXY, err := rimage.ConvolveGrayFloat64(gX, &sobelY)
	if err != nil {
		return nil, err
	}
	m1 := mat.NewDense(nRows, nCols, nil)
	m2 := mat.NewDense(nRows, nCols, nil)
	out := mat.NewDense(nRows, nCols, nil)
	m1.MulElem(gXX, gYY)
	m2.MulElem(gXY, gXY)
	out.Sub(m1, m2)
	return out, nil
}

// SaddleMap returns the negated Hessian determinant with negative values set to 0. Checkerboard
// corners are strong positive peaks of this map.
func SaddleMap(blurred *mat.Dense) (*mat.Dense, error) {
	hessian, err := computePixelWiseHessianDeterminant(blurred)
	if err != nil {
		return nil, err
	}
	hessian.Apply(func(r, c int, v float64) float64 {
		if v > 0 {
			return 0
		}
		return -v
	}, hessian)
	return hessian, nil
}

// NonMaxSuppression returns the local maxima of s within a (2*radius+1) window that are above
// floor, with a parabolic sub-pixel offset. Plateaus keep their first pixel in raster order.
func NonMaxSuppression(s *mat.Dense, radius int, floor float64) []saddle {
	h, w := s.Dims()
	raw := s.RawMatrix()
	at := func(x, y int) float64 { return raw.Data[y*raw.Stride+x] }

	var out []saddle
	for y := radius; y < h-radius; y++ {
		for x := radius; x < w-radius; x++ {
			v := at(x, y)
			if v <= floor {
				continue
			}
			isMax := true
			for dy := -radius; dy <= radius && isMax; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					n := at(x+dx, y+dy)
					if n > v || (n == v && (dy < 0 || (dy == 0 && dx < 0))) {
						isMax = false
						break
					}
				}
			}
			if !isMax {
				continue
			}
			out = append(out, saddle{
				pt: r2.Point{
					X: float64(x) + parabolicOffset(at(x-1, y), v, at(x+1, y)),
					Y: float64(y) + parabolicOffset(at(x, y-1), v, at(x, y+1)),
				},
				response: v,
			})
		}
	}
	return out
}

func parabolicOffset(left, center, right float64) float64 {
	denom := left - 2*center + right
	if denom >= 0 {
		return 0
	}
	return math.Max(-0.5, math.Min(0.5, 0.5*(left-right)/denom))
}

// GetSaddlePoints finds checkerboard corner candidates in a luminance image. expected is the number
// of corners on the board and sets the response level a candidate is compared against.
func GetSaddlePoints(lum *mat.Dense, expected int, conf *SaddleConfiguration) ([]r2.Point, *mat.Dense, error) {
	blurred := rimage.GaussianBlurFloat64(lum, conf.BlurSigma)
	saddleMap, err := SaddleMap(blurred)
	if err != nil {
		return nil, nil, err
	}
	peak := mat.Max(saddleMap)
	if peak <= 0 {
		return nil, saddleMap, nil
	}
	maxima := NonMaxSuppression(saddleMap, conf.NMSRadius, peak*1e-3)
	if len(maxima) < expected {
		return nil, saddleMap, nil
	}
	sort.Slice(maxima, func(i, j int) bool { return maxima[i].response > maxima[j].response })

	top := make([]float64, expected)
	for i := range top {
		top[i] = maxima[i].response
	}
	reference, err := stats.Median(top)
	if err != nil {
		return nil, saddleMap, err
	}

	h, w := lum.Dims()
	margin := conf.RingRadius + 1
	var points []r2.Point
	for _, m := range maxima {
		if m.response < conf.RelativeThreshold*reference {
			break
		}
		if m.pt.X < margin || m.pt.Y < margin || m.pt.X > float64(w-1)-margin || m.pt.Y > float64(h-1)-margin {
			continue
		}
		if ringTransitions(blurred, m.pt, conf.RingRadius, conf.MinContrast) == 4 {
			points = append(points, m.pt)
		}
	}
	return points, saddleMap, nil
}

// ringTransitions counts dark/bright alternations on a circle around pt. An X junction of a
// checkerboard has exactly 4; edges have 2 and the L or T junctions on the board border have 2.
func ringTransitions(img *mat.Dense, pt r2.Point, radius, minContrast float64) int {
	var samples [ringSamples]float64
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range samples {
		theta := 2 * math.Pi * float64(i) / ringSamples
		samples[i] = rimage.BilinearInterpolationFloat(img, r2.Point{
			X: pt.X + radius*math.Cos(theta),
			Y: pt.Y + radius*math.Sin(theta),
		})
		lo, hi = math.Min(lo, samples[i]), math.Max(hi, samples[i])
	}
	if hi-lo < minContrast {
		return 0
	}
	mid, band := (hi+lo)/2, 0.15*(hi-lo)

	labels := make([]int, 0, ringSamples)
	for _, v := range samples {
		switch {
		case v > mid+band:
			labels = append(labels, 1)
		case v < mid-band:
			labels = append(labels, -1)
		}
	}
	if len(labels) == 0 {
		return 0
	}
	transitions := 0
	for i, l := range labels {
		if l != labels[(i+1)%len(labels)] {
			transitions++
		}
	}
	return transitions
}
