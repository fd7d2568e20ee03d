package pose

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// FromQuaternion returns the transform with rotation q and translation t.
// q is normalised first; a zero quaternion yields the identity rotation.
func FromQuaternion(q quat.Number, t r3.Vec) Transform {
	n := quat.Abs(q)
	if n == 0 || math.IsNaN(n) {
		return FromRotationTranslation(Identity().Rotation(), t)
	}
	q = quat.Scale(1/n, q)
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return FromRotationTranslation([9]float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	}, t)
}

// Quaternion returns the unit quaternion of the rotation part of t with a
// non-negative real part.
func (t Transform) Quaternion() quat.Number {
	r := t.Rotation()
	var q quat.Number
	switch tr := r[0] + r[4] + r[8]; {
	case tr > 0:
		s := 2 * math.Sqrt(tr+1)
		q = quat.Number{Real: s / 4, Imag: (r[7] - r[5]) / s, Jmag: (r[2] - r[6]) / s, Kmag: (r[3] - r[1]) / s}
	case r[0] > r[4] && r[0] > r[8]:
		s := 2 * math.Sqrt(1+r[0]-r[4]-r[8])
		q = quat.Number{Real: (r[7] - r[5]) / s, Imag: s / 4, Jmag: (r[1] + r[3]) / s, Kmag: (r[2] + r[6]) / s}
	case r[4] > r[8]:
		s := 2 * math.Sqrt(1+r[4]-r[0]-r[8])
		q = quat.Number{Real: (r[2] - r[6]) / s, Imag: (r[1] + r[3]) / s, Jmag: s / 4, Kmag: (r[5] + r[7]) / s}
	default:
		s := 2 * math.Sqrt(1+r[8]-r[0]-r[4])
		q = quat.Number{Real: (r[3] - r[1]) / s, Imag: (r[2] + r[6]) / s, Jmag: (r[5] + r[7]) / s, Kmag: s / 4}
	}
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	return quat.Scale(1/quat.Abs(q), q)
}

// Chain accumulates relative transforms onto start:
// out[0] = start and out[i+1] = out[i]·rel[i].
func Chain(start Transform, rel []Transform) []Transform {
	out := make([]Transform, len(rel)+1)
	out[0] = start
	for i, r := range rel {
		out[i+1] = out[i].Compose(r)
	}
	return out
}

// Relative returns the transforms between consecutive poses:
// rel[i] = abs[i]⁻¹·abs[i+1]. Chain(abs[0], Relative(abs)) reproduces abs.
func Relative(abs []Transform) []Transform {
	if len(abs) < 2 {
		return nil
	}
	rel := make([]Transform, len(abs)-1)
	for i := range rel {
		rel[i] = abs[i].Inverse().Compose(abs[i+1])
	}
	return rel
}
