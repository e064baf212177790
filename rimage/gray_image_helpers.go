package rimage

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var errEmptyKernel = errors.New("convolution kernel is empty")

// SameImgSize compares images to see if they're the same size.
func SameImgSize(g1, g2 image.Image) bool {
	return g1.Bounds().Size() == g2.Bounds().Size()
}

// MakeGray converts any image to an *image.Gray with its origin at (0, 0).
func MakeGray(pic image.Image) *image.Gray {
	if g, ok := pic.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) && g.Stride == g.Bounds().Dx() {
		return g
	}
	b := pic.Bounds()
	result := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(result, result.Bounds(), pic, b.Min, draw.Src)
	return result
}

// ConvertImageToLuminanceFloat returns the luminance of img in [0, 255] as a matrix with one row
// per image row.
func ConvertImageToLuminanceFloat(img image.Image) *mat.Dense {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := mat.NewDense(h, w, nil)
	data := out.RawMatrix().Data

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < h; y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			for x := 0; x < w; x++ {
				data[y*w+x] = float64(src.Pix[off+x])
			}
		}
	case *image.RGBA:
		rgbaLuminance(data, src.Pix, src.Stride, src.PixOffset(b.Min.X, b.Min.Y), w, h)
	case *image.NRGBA:
		rgbaLuminance(data, src.Pix, src.Stride, src.PixOffset(b.Min.X, b.Min.Y), w, h)
	default:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
				data[y*w+x] = float64(c.Y)
			}
		}
	}
	return out
}

func rgbaLuminance(data []float64, pix []uint8, stride, offset, w, h int) {
	for y := 0; y < h; y++ {
		row := offset + y*stride
		for x := 0; x < w; x++ {
			p := pix[row+4*x : row+4*x+3]
			data[y*w+x] = 0.299*float64(p[0]) + 0.587*float64(p[1]) + 0.114*float64(p[2])
		}
	}
}
