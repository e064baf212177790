package transform

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// NumDistortionCoefficients is the length of the coefficient vector (k1, k2, p1, p2, k3).
const NumDistortionCoefficients = 5

// DistortionType names a lens model in calibration files.
type DistortionType string

const (
	// BrownConradyDistortionType maps ideal normalized coordinates to distorted ones.
	BrownConradyDistortionType = DistortionType("brown_conrady")
	// InverseBrownConradyDistortionType maps distorted normalized coordinates back to ideal ones.
	InverseBrownConradyDistortionType = DistortionType("inverse_brown_conrady")
)

// Distorter is a lens model acting on normalized image coordinates.
type Distorter interface {
	ModelType() DistortionType
	CheckValid() error
	Parameters() []float64
	Transform(x, y float64) (float64, float64)
}

// InvalidDistortionError is used when the distortion coefficients are invalid.
func InvalidDistortionError(msg string) error {
	return errors.Wrap(errors.New("invalid distortion coefficients"), msg)
}

// NewDistorter builds the lens model named by distortionType.
func NewDistorter(distortionType DistortionType, parameters []float64) (Distorter, error) {
	switch distortionType {
	case BrownConradyDistortionType:
		return NewBrownConrady(parameters)
	case InverseBrownConradyDistortionType:
		return NewInverseBrownConrady(parameters)
	default:
		return nil, errors.Errorf("unknown distortion model %q", distortionType)
	}
}

// BrownConrady is the five coefficient radial + tangential lens model. Coefficients are
// ordered k1, k2, p1, p2, k3 everywhere they appear as a list.
type BrownConrady struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
	RadialK3     float64 `json:"rk3"`
}

// NewBrownConrady takes in a slice of floats ordered k1, k2, p1, p2, k3. Missing trailing
// values are zero.
func NewBrownConrady(inp []float64) (*BrownConrady, error) {
	if len(inp) > NumDistortionCoefficients {
		return nil, errors.Errorf("list of parameters too long, expected max %d, got %d", NumDistortionCoefficients, len(inp))
	}
	var c [NumDistortionCoefficients]float64
	copy(c[:], inp)
	bc := &BrownConrady{c[0], c[1], c[2], c[3], c[4]}
	if err := bc.CheckValid(); err != nil {
		return nil, err
	}
	return bc, nil
}

// CheckValid checks if the fields for BrownConrady have valid inputs.
func (bc *BrownConrady) CheckValid() error {
	if bc == nil {
		return InvalidDistortionError("BrownConrady shaped distortion_parameters not provided")
	}
	for i, v := range bc.Parameters() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return InvalidDistortionError(fmt.Sprintf("coefficient %d is not finite", i))
		}
	}
	return nil
}

// ModelType returns the type of distortion model.
func (bc *BrownConrady) ModelType() DistortionType {
	return BrownConradyDistortionType
}

// Parameters returns the coefficients as k1, k2, p1, p2, k3.
func (bc *BrownConrady) Parameters() []float64 {
	if bc == nil {
		return []float64{}
	}
	return []float64{bc.RadialK1, bc.RadialK2, bc.TangentialP1, bc.TangentialP2, bc.RadialK3}
}

// IsZero reports whether the model leaves every point where it is.
func (bc *BrownConrady) IsZero() bool {
	return bc == nil || *bc == BrownConrady{}
}

// Transform distorts normalized image coordinates:
//
//	x_d = x * (1 + k1*r² + k2*r⁴ + k3*r⁶) + 2*p1*x*y + p2*(r² + 2*x²)
//	y_d = y * (1 + k1*r² + k2*r⁴ + k3*r⁶) + 2*p2*x*y + p1*(r² + 2*y²)
func (bc *BrownConrady) Transform(x, y float64) (float64, float64) {
	if bc == nil {
		return x, y
	}
	r2 := x*x + y*y
	radDist := 1. + r2*(bc.RadialK1+r2*(bc.RadialK2+r2*bc.RadialK3))
	xd := x*radDist + 2.*bc.TangentialP1*x*y + bc.TangentialP2*(r2+2.*x*x)
	yd := y*radDist + 2.*bc.TangentialP2*x*y + bc.TangentialP1*(r2+2.*y*y)
	return xd, yd
}

// jacobian returns the partial derivatives of Transform at (x, y) as
// [[dxd/dx, dxd/dy], [dyd/dx, dyd/dy]].
func (bc *BrownConrady) jacobian(x, y float64) (float64, float64, float64, float64) {
	r2 := x*x + y*y
	r4 := r2 * r2
	radDist := 1. + bc.RadialK1*r2 + bc.RadialK2*r4 + bc.RadialK3*r4*r2
	dRad := 2. * (bc.RadialK1 + 2.*bc.RadialK2*r2 + 3.*bc.RadialK3*r4)

	dxdx := radDist + x*x*dRad + 2.*bc.TangentialP1*y + 6.*bc.TangentialP2*x
	dxdy := x*y*dRad + 2.*bc.TangentialP1*x + 2.*bc.TangentialP2*y
	dydx := x*y*dRad + 2.*bc.TangentialP2*y + 2.*bc.TangentialP1*x
	dydy := radDist + y*y*dRad + 2.*bc.TangentialP2*x + 6.*bc.TangentialP1*y
	return dxdx, dxdy, dydx, dydy
}
