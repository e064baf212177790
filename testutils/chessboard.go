package testutils

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/rimage/transform"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/utils"
)

// Gray levels of rendered boards.
const (
	DarkLevel       = 30
	LightLevel      = 225
	BackgroundLevel = 128
)

const supersample = 3

// SyntheticBoard is a checkerboard with Cols x Rows inner corners. It has (Cols+1) x (Rows+1)
// squares surrounded by a light margin one square wide; the first square is dark.
type SyntheticBoard struct {
	Cols       int
	Rows       int
	SquareSize float64
}

// PatternSize returns the inner corner count as (Cols, Rows).
func (b SyntheticBoard) PatternSize() image.Point {
	return image.Point{b.Cols, b.Rows}
}

// Corners returns the inner corners in board coordinates, row-major.
func (b SyntheticBoard) Corners() []r3.Vector {
	out := make([]r3.Vector, 0, b.Cols*b.Rows)
	for j := 0; j < b.Rows; j++ {
		for i := 0; i < b.Cols; i++ {
			out = append(out, r3.Vector{X: float64(i) * b.SquareSize, Y: float64(j) * b.SquareSize})
		}
	}
	return out
}

func (b SyntheticBoard) shade(x, y float64) float64 {
	qx := int(math.Floor(x / b.SquareSize))
	qy := int(math.Floor(y / b.SquareSize))
	switch {
	case qx >= -1 && qx <= b.Cols-1 && qy >= -1 && qy <= b.Rows-1:
		if (qx+qy)%2 == 0 {
			return DarkLevel
		}
		return LightLevel
	case qx >= -2 && qx <= b.Cols && qy >= -2 && qy <= b.Rows:
		return LightLevel
	default:
		return BackgroundLevel
	}
}

// outline samples the outer edge of the margin in board coordinates.
func (b SyntheticBoard) outline() []r3.Vector {
	s := b.SquareSize
	x0, y0 := -2*s, -2*s
	x1, y1 := float64(b.Cols+1)*s, float64(b.Rows+1)*s
	const n = 16
	out := make([]r3.Vector, 0, 4*n)
	for k := 0; k < n; k++ {
		f := float64(k) / n
		out = append(out,
			r3.Vector{X: x0 + f*(x1-x0), Y: y0},
			r3.Vector{X: x1, Y: y0 + f*(y1-y0)},
			r3.Vector{X: x1 - f*(x1-x0), Y: y1},
			r3.Vector{X: x0, Y: y1 - f*(y1-y0)},
		)
	}
	return out
}

// DefaultSyntheticCamera is a 480x360 camera with strong barrel distortion.
func DefaultSyntheticCamera() *transform.PinholeCameraModel {
	model, err := transform.NewPinholeCameraModel(transform.PinholeCameraIntrinsics{
		Width: 480, Height: 360, Fx: 410, Fy: 405, Ppx: 243.5, Ppy: 178.25,
	}, []float64{-0.28, 0.09, 0, 0, 0})
	if err != nil {
		panic(err)
	}
	return model
}

// WithoutDistortion returns a copy of model with every distortion coefficient set to zero.
func WithoutDistortion(model *transform.PinholeCameraModel) *transform.PinholeCameraModel {
	intrinsics := *model.PinholeCameraIntrinsics
	return &transform.PinholeCameraModel{PinholeCameraIntrinsics: &intrinsics, Distortion: &transform.BrownConrady{}}
}

// BoardRenderer draws anti-aliased views of a board as seen through a camera model.
type BoardRenderer struct {
	model *transform.PinholeCameraModel
	board SyntheticBoard
	// rays holds the undistorted normalized coordinates of every supersample.
	rays []r2.Point
}

// NewBoardRenderer precomputes the inverse lens mapping of every supersample of the image.
func NewBoardRenderer(model *transform.PinholeCameraModel, board SyntheticBoard) *BoardRenderer {
	w, h := model.Width*supersample, model.Height*supersample
	inverse := transform.InverseBrownConrady{BrownConrady: *model.Distortion}
	rays := make([]r2.Point, w*h)
	utils.ParallelForEachRow(h, func(sy int) {
		v := float64(sy)/supersample - float64(supersample-1)/(2*supersample)
		for sx := 0; sx < w; sx++ {
			u := float64(sx)/supersample - float64(supersample-1)/(2*supersample)
			x, y := inverse.Transform((u-model.Ppx)/model.Fx, (v-model.Ppy)/model.Fy)
			rays[sy*w+sx] = r2.Point{X: x, Y: y}
		}
	})
	return &BoardRenderer{model: model, board: board, rays: rays}
}

// Render draws the board at pose.
func (r *BoardRenderer) Render(pose transform.Pose) *image.Gray {
	rot := transform.RotationFromVector(pose.Rotation)
	c1, c2 := rot.Col(0), rot.Col(1)
	hom := mat.NewDense(3, 3, []float64{
		c1.X, c2.X, pose.Translation.X,
		c1.Y, c2.Y, pose.Translation.Y,
		c1.Z, c2.Z, pose.Translation.Z,
	})
	var inv mat.Dense
	if err := inv.Inverse(hom); err != nil {
		panic(err)
	}
	hi := inv.RawMatrix().Data

	width, height := r.model.Width, r.model.Height
	img := image.NewGray(image.Rect(0, 0, width, height))
	utils.ParallelForEachRow(height, func(y int) {
		for x := 0; x < width; x++ {
			var sum float64
			for dy := 0; dy < supersample; dy++ {
				row := (y*supersample + dy) * width * supersample
				for dx := 0; dx < supersample; dx++ {
					ray := r.rays[row+x*supersample+dx]
					bx := hi[0]*ray.X + hi[1]*ray.Y + hi[2]
					by := hi[3]*ray.X + hi[4]*ray.Y + hi[5]
					bw := hi[6]*ray.X + hi[7]*ray.Y + hi[8]
					if bw <= 0 {
						sum += BackgroundLevel
						continue
					}
					sum += r.board.shade(bx/bw, by/bw)
				}
			}
			img.Pix[y*img.Stride+x] = uint8(math.Round(sum / (supersample * supersample)))
		}
	})
	return img
}

// Corners returns the exact image positions of the inner corners at pose.
func (r *BoardRenderer) Corners(pose transform.Pose) []r2.Point {
	return r.model.ProjectPoints(r.board.Corners(), pose)
}

// Fits reports whether the whole board, margin included, is at least padding pixels inside the image.
func (r *BoardRenderer) Fits(pose transform.Pose, padding float64) bool {
	for _, p := range r.board.outline() {
		cam := pose.Apply(p)
		if cam.Z <= 0 {
			return false
		}
		px := r.model.ProjectPoint(cam)
		if px.X < padding || px.Y < padding ||
			px.X > float64(r.model.Width-1)-padding || px.Y > float64(r.model.Height-1)-padding {
			return false
		}
	}
	return true
}

// SyntheticPoses returns n deterministic, well spread board poses that keep the board in view.
func (r *BoardRenderer) SyntheticPoses(n int) []transform.Pose {
	b := r.board
	m := r.model
	center := r3.Vector{X: float64(b.Cols-1) * b.SquareSize / 2, Y: float64(b.Rows-1) * b.SquareSize / 2}
	baseZ := m.Fx * float64(b.Cols+3) * b.SquareSize / (0.7 * float64(m.Width))

	poses := make([]transform.Pose, 0, n)
	for k := 0; k < n; k++ {
		a := float64(k)
		rotation := r3.Vector{
			X: 0.5 * math.Sin(a*2.4),
			Y: 0.5 * math.Sin(a*1.7+1),
			Z: 0.3 * math.Sin(a*0.9+0.5),
		}
		rot := transform.RotationFromVector(rotation)
		z := baseZ * (1 + 0.15*math.Sin(a*0.7))
		offX := 0.35 * math.Sin(a*1.3) * float64(m.Width) / 2 / m.Fx
		offY := 0.35 * math.Cos(a*1.1) * float64(m.Height) / 2 / m.Fy

		var pose transform.Pose
		for attempt := 0; attempt < 60; attempt++ {
			target := r3.Vector{X: offX * z, Y: offY * z, Z: z}
			pose = transform.Pose{Rotation: rotation, Translation: target.Sub(rot.Apply(center))}
			if r.Fits(pose, 4) {
				break
			}
			z *= 1.05
			offX *= 0.9
			offY *= 0.9
		}
		poses = append(poses, pose)
	}
	return poses
}
