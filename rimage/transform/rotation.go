package transform

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// RotationMatrix is a row-major 3x3 rotation.
type RotationMatrix [9]float64

// IdentityRotation returns the rotation that does nothing.
func IdentityRotation() RotationMatrix {
	return RotationMatrix{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// RotationFromVector converts a rotation vector (axis scaled by angle in radians) to a matrix
// with the Rodrigues formula.
func RotationFromVector(v r3.Vector) RotationMatrix {
	theta := v.Norm()
	if theta < 1e-12 {
		// first order expansion keeps small rotations differentiable
		return RotationMatrix{
			1, -v.Z, v.Y,
			v.Z, 1, -v.X,
			-v.Y, v.X, 1,
		}
	}
	k := v.Mul(1 / theta)
	c, s := math.Cos(theta), math.Sin(theta)
	t := 1 - c
	return RotationMatrix{
		c + t*k.X*k.X, t*k.X*k.Y - s*k.Z, t*k.X*k.Z + s*k.Y,
		t*k.Y*k.X + s*k.Z, c + t*k.Y*k.Y, t*k.Y*k.Z - s*k.X,
		t*k.Z*k.X - s*k.Y, t*k.Z*k.Y + s*k.X, c + t*k.Z*k.Z,
	}
}

// RotationFromDense copies a 3x3 gonum matrix.
func RotationFromDense(m mat.Matrix) RotationMatrix {
	var rot RotationMatrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rot[3*i+j] = m.At(i, j)
		}
	}
	return rot
}

// At returns the element at row i, column j.
func (rm RotationMatrix) At(i, j int) float64 {
	return rm[3*i+j]
}

// Dense returns the rotation as a gonum matrix.
func (rm RotationMatrix) Dense() *mat.Dense {
	data := rm
	return mat.NewDense(3, 3, data[:])
}

// Apply rotates a vector.
func (rm RotationMatrix) Apply(p r3.Vector) r3.Vector {
	return r3.Vector{
		X: rm[0]*p.X + rm[1]*p.Y + rm[2]*p.Z,
		Y: rm[3]*p.X + rm[4]*p.Y + rm[5]*p.Z,
		Z: rm[6]*p.X + rm[7]*p.Y + rm[8]*p.Z,
	}
}

// Col returns column j as a vector.
func (rm RotationMatrix) Col(j int) r3.Vector {
	return r3.Vector{X: rm[j], Y: rm[3+j], Z: rm[6+j]}
}

// Transpose returns the inverse rotation.
func (rm RotationMatrix) Transpose() RotationMatrix {
	return RotationMatrix{
		rm[0], rm[3], rm[6],
		rm[1], rm[4], rm[7],
		rm[2], rm[5], rm[8],
	}
}

// Mul returns rm * other.
func (rm RotationMatrix) Mul(other RotationMatrix) RotationMatrix {
	var out RotationMatrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += rm[3*i+k] * other[3*k+j]
			}
			out[3*i+j] = sum
		}
	}
	return out
}

// ToVector converts the matrix back to a rotation vector with angle in [0, pi].
func (rm RotationMatrix) ToVector() r3.Vector {
	cosTheta := (rm[0] + rm[4] + rm[8] - 1) / 2
	cosTheta = math.Max(-1, math.Min(1, cosTheta))
	theta := math.Acos(cosTheta)
	skew := r3.Vector{X: rm[7] - rm[5], Y: rm[2] - rm[6], Z: rm[3] - rm[1]}

	switch {
	case theta < 1e-9:
		return skew.Mul(0.5)
	case math.Pi-theta < 1e-6:
		// sin(theta) vanishes, recover the axis from the symmetric part
		xx := math.Sqrt(math.Max(0, (rm[0]+1)/2))
		yy := math.Sqrt(math.Max(0, (rm[4]+1)/2))
		zz := math.Sqrt(math.Max(0, (rm[8]+1)/2))
		var axis r3.Vector
		switch {
		case xx >= yy && xx >= zz:
			axis = r3.Vector{X: xx, Y: (rm[1] + rm[3]) / (4 * xx), Z: (rm[2] + rm[6]) / (4 * xx)}
		case yy >= zz:
			axis = r3.Vector{X: (rm[1] + rm[3]) / (4 * yy), Y: yy, Z: (rm[5] + rm[7]) / (4 * yy)}
		default:
			axis = r3.Vector{X: (rm[2] + rm[6]) / (4 * zz), Y: (rm[5] + rm[7]) / (4 * zz), Z: zz}
		}
		return axis.Normalize().Mul(theta)
	default:
		return skew.Mul(theta / (2 * math.Sin(theta)))
	}
}

// Pose is a rigid transform from an object frame into the camera frame. Rotation is a
// rotation vector.
type Pose struct {
	Rotation    r3.Vector `json:"rotation"`
	Translation r3.Vector `json:"translation"`
}

// Apply maps a point from the object frame into the camera frame.
func (p Pose) Apply(pt r3.Vector) r3.Vector {
	return RotationFromVector(p.Rotation).Apply(pt).Add(p.Translation)
}
