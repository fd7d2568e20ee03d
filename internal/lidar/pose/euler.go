package pose

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// gimbalEpsilon is how close |sin β| may get to 1 before the decomposition
// treats the rotation as gimbal-locked.
const gimbalEpsilon = 1e-9

// Pose6 is the 6-vector form of a Transform. Angles are in radians and
// follow the only Euler convention used in this module: α about x, then β
// about the new y, then γ about the new z, so R = Rx(α)·Ry(β)·Rz(γ).
type Pose6 struct {
	TX, TY, TZ         float64
	Alpha, Beta, Gamma float64
}

// Vector returns the pose as (tx, ty, tz, α, β, γ).
func (p Pose6) Vector() [6]float64 {
	return [6]float64{p.TX, p.TY, p.TZ, p.Alpha, p.Beta, p.Gamma}
}

func (p Pose6) String() string {
	return fmt.Sprintf("t=(%.4f, %.4f, %.4f) euler=(%.4f°, %.4f°, %.4f°)",
		p.TX, p.TY, p.TZ, p.Alpha*180/math.Pi, p.Beta*180/math.Pi, p.Gamma*180/math.Pi)
}

// EulerRotation returns the row-major rotation Rx(α)·Ry(β)·Rz(γ).
func EulerRotation(alpha, beta, gamma float64) [9]float64 {
	sa, ca := math.Sincos(alpha)
	sb, cb := math.Sincos(beta)
	sg, cg := math.Sincos(gamma)
	return [9]float64{
		cb * cg, -cb * sg, sb,
		ca*sg + sa*sb*cg, ca*cg - sa*sb*sg, -sa * cb,
		sa*sg - ca*sb*cg, sa*cg + ca*sb*sg, ca * cb,
	}
}

// EulerAngles decomposes a row-major rotation into (α, β, γ) for
// R = Rx(α)·Ry(β)·Rz(γ). Near β = ±90° the decomposition is not unique:
// γ is fixed to 0 and α carries the coupled rotation.
func EulerAngles(r [9]float64) (alpha, beta, gamma float64) {
	sb := clamp(r[2], -1, 1)
	beta = math.Asin(sb)
	if math.Abs(sb) < 1-gimbalEpsilon {
		alpha = math.Atan2(-r[5], r[8])
		gamma = math.Atan2(-r[1], r[0])
		return alpha, beta, gamma
	}
	alpha = math.Atan2(r[7], r[4])
	return alpha, beta, 0
}

// FromPose6 assembles a Transform from a 6-vector pose.
func FromPose6(p Pose6) Transform {
	return FromRotationTranslation(EulerRotation(p.Alpha, p.Beta, p.Gamma), r3.Vec{X: p.TX, Y: p.TY, Z: p.TZ})
}

// ToPose6 decomposes a Transform into its 6-vector pose.
func (t Transform) ToPose6() Pose6 {
	a, b, g := EulerAngles(t.Rotation())
	tr := t.Translation()
	return Pose6{TX: tr.X, TY: tr.Y, TZ: tr.Z, Alpha: a, Beta: b, Gamma: g}
}
