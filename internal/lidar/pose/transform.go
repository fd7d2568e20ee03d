// Package pose holds rigid-body transforms and their 6-vector form.
//
// A Transform is a 4x4 homogeneous matrix in row-major order:
//
//	m00 m01 m02 m03
//	m10 m11 m12 m13
//	m20 m21 m22 m23
//	m30 m31 m32 m33
//
// The rotation is the upper-left 3x3 block, the translation is the last
// column, and the last row is [0 0 0 1].
package pose

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// MatrixValidationTolerance is the tolerance for checking rotation matrix validity.
const MatrixValidationTolerance = 0.01

// Transform is a homogeneous rigid-body transform.
type Transform struct {
	T [16]float64
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{T: [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}}
}

// FromRotationTranslation builds a transform from a row-major 3x3 rotation and a translation.
func FromRotationTranslation(r [9]float64, t r3.Vec) Transform {
	return Transform{T: [16]float64{
		r[0], r[1], r[2], t.X,
		r[3], r[4], r[5], t.Y,
		r[6], r[7], r[8], t.Z,
		0, 0, 0, 1,
	}}
}

// Translate returns a pure translation.
func Translate(x, y, z float64) Transform {
	t := Identity()
	t.T[3], t.T[7], t.T[11] = x, y, z
	return t
}

// Rotation returns the row-major 3x3 rotation block.
func (t Transform) Rotation() [9]float64 {
	return [9]float64{
		t.T[0], t.T[1], t.T[2],
		t.T[4], t.T[5], t.T[6],
		t.T[8], t.T[9], t.T[10],
	}
}

// Translation returns the translation column.
func (t Transform) Translation() r3.Vec {
	return r3.Vec{X: t.T[3], Y: t.T[7], Z: t.T[11]}
}

// Apply maps a point through the full transform.
func (t Transform) Apply(p r3.Vec) r3.Vec {
	return r3.Vec{
		X: t.T[0]*p.X + t.T[1]*p.Y + t.T[2]*p.Z + t.T[3],
		Y: t.T[4]*p.X + t.T[5]*p.Y + t.T[6]*p.Z + t.T[7],
		Z: t.T[8]*p.X + t.T[9]*p.Y + t.T[10]*p.Z + t.T[11],
	}
}

// ApplyRotation maps a direction through the rotation block only.
// Normals go through here: translation must not change a direction.
func (t Transform) ApplyRotation(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: t.T[0]*v.X + t.T[1]*v.Y + t.T[2]*v.Z,
		Y: t.T[4]*v.X + t.T[5]*v.Y + t.T[6]*v.Z,
		Z: t.T[8]*v.X + t.T[9]*v.Y + t.T[10]*v.Z,
	}
}

// Compose returns t·u, the transform that applies u first and then t.
func (t Transform) Compose(u Transform) Transform {
	var out Transform
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var s float64
			for k := 0; k < 4; k++ {
				s += t.T[i*4+k] * u.T[k*4+j]
			}
			out.T[i*4+j] = s
		}
	}
	return out
}

// Inverse returns the inverse of a rigid transform: [Rᵀ, −Rᵀt].
func (t Transform) Inverse() Transform {
	r := t.Rotation()
	rt := [9]float64{
		r[0], r[3], r[6],
		r[1], r[4], r[7],
		r[2], r[5], r[8],
	}
	tr := t.Translation()
	inv := FromRotationTranslation(rt, r3.Vec{})
	neg := inv.ApplyRotation(tr)
	inv.T[3], inv.T[7], inv.T[11] = -neg.X, -neg.Y, -neg.Z
	return inv
}

// RotationAngle returns the angle in radians of the rotation block,
// recovered from its trace.
func (t Transform) RotationAngle() float64 {
	c := (t.T[0] + t.T[5] + t.T[10] - 1) / 2
	return math.Acos(clamp(c, -1, 1))
}

// IsValid checks if the matrix is a valid rigid transform:
// det(R) ≈ +1 and the last row is [0 0 0 1].
func (t Transform) IsValid() bool {
	r := t.Rotation()
	det := r[0]*(r[4]*r[8]-r[5]*r[7]) - r[1]*(r[3]*r[8]-r[5]*r[6]) + r[2]*(r[3]*r[7]-r[4]*r[6])
	if math.Abs(det-1.0) > MatrixValidationTolerance {
		return false
	}
	if t.T[12] != 0 || t.T[13] != 0 || t.T[14] != 0 || math.Abs(t.T[15]-1.0) > 0.001 {
		return false
	}
	return true
}

// AxisAngle returns the rotation of angle |w| about the axis w (Rodrigues).
func AxisAngle(w r3.Vec) Transform {
	theta := r3.Norm(w)
	if theta < 1e-12 {
		// First-order term keeps tiny increments exact to machine precision.
		return FromRotationTranslation([9]float64{
			1, -w.Z, w.Y,
			w.Z, 1, -w.X,
			-w.Y, w.X, 1,
		}, r3.Vec{})
	}
	k := r3.Scale(1/theta, w)
	s, c := math.Sincos(theta)
	v := 1 - c
	return FromRotationTranslation([9]float64{
		c + k.X*k.X*v, k.X*k.Y*v - k.Z*s, k.X*k.Z*v + k.Y*s,
		k.Y*k.X*v + k.Z*s, c + k.Y*k.Y*v, k.Y*k.Z*v - k.X*s,
		k.Z*k.X*v - k.Y*s, k.Z*k.Y*v + k.X*s, c + k.Z*k.Z*v,
	}, r3.Vec{})
}

// Delta reports the translation distance and rotation angle of a⁻¹·b.
func Delta(a, b Transform) (translation, angle float64) {
	d := a.Inverse().Compose(b)
	return r3.Norm(d.Translation()), d.RotationAngle()
}

// String formats the transform as four rows.
func (t Transform) String() string {
	return fmt.Sprintf("[%.6f %.6f %.6f %.6f; %.6f %.6f %.6f %.6f; %.6f %.6f %.6f %.6f; %g %g %g %g]",
		t.T[0], t.T[1], t.T[2], t.T[3],
		t.T[4], t.T[5], t.T[6], t.T[7],
		t.T[8], t.T[9], t.T[10], t.T[11],
		t.T[12], t.T[13], t.T[14], t.T[15])
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
