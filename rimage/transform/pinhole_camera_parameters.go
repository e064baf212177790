package transform

import (
	"fmt"
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intriniscs are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// PinholeCameraModel is the model of a pinhole camera: the intrinsics of the image resolution it
// was calibrated at plus the Brown-Conrady lens distortion.
//
// A model is never modified after it is built; recalibrating produces a new model.
type PinholeCameraModel struct {
	*PinholeCameraIntrinsics `json:"intrinsic_parameters"`
	Distortion               *BrownConrady `json:"distortion"`
}

// NewPinholeCameraModel builds a model from intrinsics and k1, k2, p1, p2, k3 coefficients.
func NewPinholeCameraModel(intrinsics PinholeCameraIntrinsics, coefficients []float64) (*PinholeCameraModel, error) {
	distortion, err := NewBrownConrady(coefficients)
	if err != nil {
		return nil, err
	}
	model := &PinholeCameraModel{PinholeCameraIntrinsics: &intrinsics, Distortion: distortion}
	if err := model.CheckValid(); err != nil {
		return nil, err
	}
	return model, nil
}

// NewPinholeCameraModelFromMatrix builds a model from a 3x3 intrinsic matrix (zero skew), the
// distortion coefficients and the image size the matrix belongs to.
func NewPinholeCameraModelFromMatrix(k mat.Matrix, coefficients []float64, size image.Point) (*PinholeCameraModel, error) {
	if r, c := k.Dims(); r != 3 || c != 3 {
		return nil, errors.Errorf("intrinsic matrix must be 3x3, got %dx%d", r, c)
	}
	if k.At(0, 1) != 0 || k.At(1, 0) != 0 || k.At(2, 0) != 0 || k.At(2, 1) != 0 || k.At(2, 2) != 1 {
		return nil, errors.New("intrinsic matrix must have the form [[fx 0 ppx] [0 fy ppy] [0 0 1]]")
	}
	return NewPinholeCameraModel(PinholeCameraIntrinsics{
		Width:  size.X,
		Height: size.Y,
		Fx:     k.At(0, 0),
		Fy:     k.At(1, 1),
		Ppx:    k.At(0, 2),
		Ppy:    k.At(1, 2),
	}, coefficients)
}

// CheckValid checks the intrinsics and the distortion model.
func (params *PinholeCameraModel) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("camera model does not exist")
	}
	if err := params.PinholeCameraIntrinsics.CheckValid(); err != nil {
		return err
	}
	return params.Distortion.CheckValid()
}

// DistortionCoefficients returns k1, k2, p1, p2, k3.
func (params *PinholeCameraModel) DistortionCoefficients() []float64 {
	if params.Distortion == nil {
		return make([]float64, NumDistortionCoefficients)
	}
	return params.Distortion.Parameters()
}

// DistortionMap is a function that transforms the undistorted input points (u,v) to the distorted points (x,y)
// according to the model in PinholeCameraModel.Distortion.
func (params *PinholeCameraModel) DistortionMap() func(u, v float64) (float64, float64) {
	return func(u, v float64) (float64, float64) {
		x := (u - params.Ppx) / params.Fx
		y := (v - params.Ppy) / params.Fy
		x, y = params.Distortion.Transform(x, y)
		x = x*params.Fx + params.Ppx
		y = y*params.Fy + params.Ppy
		return x, y
	}
}

// ProjectPoint projects a point given in the camera frame onto the (distorted) image.
func (params *PinholeCameraModel) ProjectPoint(pt r3.Vector) r2.Point {
	x, y := params.Distortion.Transform(pt.X/pt.Z, pt.Y/pt.Z)
	return r2.Point{X: x*params.Fx + params.Ppx, Y: y*params.Fy + params.Ppy}
}

// ProjectPoints maps points from an object frame through pose into the image.
func (params *PinholeCameraModel) ProjectPoints(points []r3.Vector, pose Pose) []r2.Point {
	rot := RotationFromVector(pose.Rotation)
	out := make([]r2.Point, len(points))
	for i, p := range points {
		out[i] = params.ProjectPoint(rot.Apply(p).Add(pose.Translation))
	}
	return out
}

// UndistortPoint moves a pixel observed through the lens to where an ideal pinhole camera with the
// same intrinsics would have seen it.
func (params *PinholeCameraModel) UndistortPoint(pt r2.Point) r2.Point {
	inv := InverseBrownConrady{}
	if params.Distortion != nil {
		inv.BrownConrady = *params.Distortion
	}
	x, y := inv.Transform((pt.X-params.Ppx)/params.Fx, (pt.Y-params.Ppy)/params.Fy)
	return r2.Point{X: x*params.Fx + params.Ppx, Y: y*params.Fy + params.Ppy}
}

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective projection of a 3D scene to the 2D plane.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Width <= 0 || params.Height <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%#v, %#v)", params.Width, params.Height))
	}
	if !(params.Fx > 0) || math.IsInf(params.Fx, 0) {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fx = %#v", params.Fx))
	}
	if !(params.Fy > 0) || math.IsInf(params.Fy, 0) {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fy = %#v", params.Fy))
	}
	if math.IsNaN(params.Ppx) || math.IsInf(params.Ppx, 0) {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal X point Ppx = %#v", params.Ppx))
	}
	if math.IsNaN(params.Ppy) || math.IsInf(params.Ppy, 0) {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal Y point Ppy = %#v", params.Ppy))
	}
	return nil
}

// Size returns the image resolution the intrinsics were computed for.
func (params *PinholeCameraIntrinsics) Size() image.Point {
	return image.Point{params.Width, params.Height}
}

// GetCameraMatrix creates a new camera matrix and returns it.
// Camera matrix:
// [[fx 0 ppx],
//
//	[0 fy ppy],
//	[0 0  1]]
func (params *PinholeCameraIntrinsics) GetCameraMatrix() *mat.Dense {
	if params == nil {
		return nil
	}
	cameraMatrix := mat.NewDense(3, 3, nil)
	cameraMatrix.Set(0, 0, params.Fx)
	cameraMatrix.Set(1, 1, params.Fy)
	cameraMatrix.Set(0, 2, params.Ppx)
	cameraMatrix.Set(1, 2, params.Ppy)
	cameraMatrix.Set(2, 2, 1)
	return cameraMatrix
}

// IntrinsicMatrix is GetCameraMatrix under the name used by calibration code.
func (params *PinholeCameraIntrinsics) IntrinsicMatrix() *mat.Dense {
	return params.GetCameraMatrix()
}
