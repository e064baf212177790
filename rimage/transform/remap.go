package transform

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/utils"
)

// edgeTolerance lets samples that land a hair outside the image, through floating point noise,
// read the edge pixel instead of the border color.
const edgeTolerance = 1e-3

// RemapTable stores, for every pixel of the undistorted output, the position in the distorted
// input it is sampled from. Tables are immutable once built and may be shared between goroutines.
type RemapTable struct {
	width, height int
	mapX, mapY    []float32
}

// BuildRemapTable precomputes the undistortion lookup for images of the given size. The output
// keeps the camera matrix of the model, so the corrected image has the same focal lengths and
// principal point as the input.
func BuildRemapTable(model *PinholeCameraModel, size image.Point) (*RemapTable, error) {
	if err := model.CheckValid(); err != nil {
		return nil, err
	}
	if size != model.Size() {
		return nil, NewDimensionMismatchError(model.Size(), size)
	}
	rt := &RemapTable{
		width:  size.X,
		height: size.Y,
		mapX:   make([]float32, size.X*size.Y),
		mapY:   make([]float32, size.X*size.Y),
	}
	if model.Distortion.IsZero() {
		utils.ParallelForEachRow(size.Y, func(y int) {
			for x := 0; x < size.X; x++ {
				rt.mapX[y*size.X+x] = float32(x)
				rt.mapY[y*size.X+x] = float32(y)
			}
		})
		return rt, nil
	}
	distort := model.DistortionMap()
	utils.ParallelForEachRow(size.Y, func(y int) {
		for x := 0; x < size.X; x++ {
			sx, sy := distort(float64(x), float64(y))
			rt.mapX[y*size.X+x] = float32(sx)
			rt.mapY[y*size.X+x] = float32(sy)
		}
	})
	return rt, nil
}

// Size returns the resolution the table was built for.
func (rt *RemapTable) Size() image.Point {
	return image.Point{rt.width, rt.height}
}

// Source returns the distorted image position that output pixel (x, y) samples.
func (rt *RemapTable) Source(x, y int) (float64, float64) {
	i := y*rt.width + x
	return float64(rt.mapX[i]), float64(rt.mapY[i])
}

// sample returns the clamped source position for table entry i, or false when it falls outside
// the source image.
func (rt *RemapTable) sample(i int) (float64, float64, bool) {
	sx, okX := clampToEdge(float64(rt.mapX[i]), rt.width)
	sy, okY := clampToEdge(float64(rt.mapY[i]), rt.height)
	return sx, sy, okX && okY
}

func clampToEdge(v float64, n int) (float64, bool) {
	maxV := float64(n - 1)
	if !(v >= -edgeTolerance && v <= maxV+edgeTolerance) {
		return 0, false
	}
	if v < 0 {
		return 0, true
	}
	if v > maxV {
		return maxV, true
	}
	return v, true
}

// pixBuffer is a view of the Pix slice shared by image.Gray, image.RGBA and image.NRGBA.
type pixBuffer struct {
	pix      []uint8
	stride   int
	offset   int
	channels int
}

// ApplyRemap undistorts img with a precomputed table using bilinear interpolation. Output pixels
// whose source lies outside the input are opaque black. *image.Gray, *image.RGBA and
// *image.NRGBA keep their type; every other image is converted to *image.NRGBA first.
func ApplyRemap(img image.Image, table *RemapTable) (image.Image, error) {
	bounds := img.Bounds()
	if bounds.Size() != table.Size() {
		return nil, NewDimensionMismatchError(table.Size(), bounds.Size())
	}
	dstRect := image.Rect(0, 0, table.width, table.height)

	switch src := img.(type) {
	case *image.Gray:
		dst := image.NewGray(dstRect)
		remapPix(
			pixBuffer{dst.Pix, dst.Stride, 0, 1},
			pixBuffer{src.Pix, src.Stride, src.PixOffset(bounds.Min.X, bounds.Min.Y), 1},
			[]uint8{0}, table)
		return dst, nil
	case *image.RGBA:
		dst := image.NewRGBA(dstRect)
		remapPix(
			pixBuffer{dst.Pix, dst.Stride, 0, 4},
			pixBuffer{src.Pix, src.Stride, src.PixOffset(bounds.Min.X, bounds.Min.Y), 4},
			[]uint8{0, 0, 0, 255}, table)
		return dst, nil
	case *image.NRGBA:
		dst := image.NewNRGBA(dstRect)
		remapPix(
			pixBuffer{dst.Pix, dst.Stride, 0, 4},
			pixBuffer{src.Pix, src.Stride, src.PixOffset(bounds.Min.X, bounds.Min.Y), 4},
			[]uint8{0, 0, 0, 255}, table)
		return dst, nil
	default:
		return ApplyRemap(imaging.Clone(img), table)
	}
}

func remapPix(dst, src pixBuffer, border []uint8, table *RemapTable) {
	w, h := table.width, table.height
	c := src.channels
	utils.ParallelForEachRow(h, func(y int) {
		row := dst.offset + y*dst.stride
		for x := 0; x < w; x++ {
			out := dst.pix[row+x*c : row+x*c+c]
			sx, sy, ok := table.sample(y*w + x)
			if !ok {
				copy(out, border)
				continue
			}
			x0, y0 := int(sx), int(sy)
			x1, y1 := x0+1, y0+1
			if x1 > w-1 {
				x1 = w - 1
			}
			if y1 > h-1 {
				y1 = h - 1
			}
			ax, ay := sx-float64(x0), sy-float64(y0)

			p00 := src.offset + y0*src.stride + x0*c
			p01 := src.offset + y0*src.stride + x1*c
			p10 := src.offset + y1*src.stride + x0*c
			p11 := src.offset + y1*src.stride + x1*c
			for ch := 0; ch < c; ch++ {
				top := float64(src.pix[p00+ch])*(1-ax) + float64(src.pix[p01+ch])*ax
				bottom := float64(src.pix[p10+ch])*(1-ax) + float64(src.pix[p11+ch])*ax
				out[ch] = uint8(top*(1-ay) + bottom*ay + 0.5)
			}
		}
	})
}

// Undistort corrects a single image. It builds a new table on every call; use BuildRemapTable and
// ApplyRemap when many images share a resolution.
func Undistort(img image.Image, model *PinholeCameraModel) (image.Image, error) {
	table, err := BuildRemapTable(model, img.Bounds().Size())
	if err != nil {
		return nil, err
	}
	return ApplyRemap(img, table)
}
