package pose

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

const deg = math.Pi / 180

func assertTransformNear(t *testing.T, want, got Transform, tol float64) {
	t.Helper()
	for i := range want.T {
		assert.InDelta(t, want.T[i], got.T[i], tol, "element %d", i)
	}
}

func TestIdentity_IsValid(t *testing.T) {
	id := Identity()
	assert.True(t, id.IsValid())
	assert.Equal(t, r3.Vec{}, id.Translation())
	assert.InDelta(t, 0, id.RotationAngle(), 1e-12)
}

func TestEulerRotation_SingleAxis(t *testing.T) {
	tests := []struct {
		name               string
		alpha, beta, gamma float64
		in, want           r3.Vec
	}{
		{"yaw 90 maps x to y", 0, 0, 90 * deg, r3.Vec{X: 1}, r3.Vec{Y: 1}},
		{"pitch 90 maps z to x", 0, 90 * deg, 0, r3.Vec{Z: 1}, r3.Vec{X: 1}},
		{"roll 90 maps y to z", 90 * deg, 0, 0, r3.Vec{Y: 1}, r3.Vec{Z: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := FromPose6(Pose6{Alpha: tt.alpha, Beta: tt.beta, Gamma: tt.gamma})
			got := tr.Apply(tt.in)
			assert.InDelta(t, tt.want.X, got.X, 1e-12)
			assert.InDelta(t, tt.want.Y, got.Y, 1e-12)
			assert.InDelta(t, tt.want.Z, got.Z, 1e-12)
		})
	}
}

func TestEulerRotation_IntrinsicOrder(t *testing.T) {
	// Rx(α)·Ry(β)·Rz(γ) composed from single-axis transforms.
	a, b, g := 10*deg, -20*deg, 30*deg
	rx := FromPose6(Pose6{Alpha: a})
	ry := FromPose6(Pose6{Beta: b})
	rz := FromPose6(Pose6{Gamma: g})
	want := rx.Compose(ry).Compose(rz)
	got := FromPose6(Pose6{Alpha: a, Beta: b, Gamma: g})
	assertTransformNear(t, want, got, 1e-12)
}

func TestPose6_RoundTrip(t *testing.T) {
	poses := []Pose6{
		{},
		{TX: 0.2, TY: -1.5, TZ: 0.03, Alpha: 0.01, Beta: -0.02, Gamma: 0.0873},
		{TX: 10, TY: 20, TZ: -3, Alpha: -2.5, Beta: 1.2, Gamma: 3.0},
		{Alpha: math.Pi - 0.01, Beta: -1.4, Gamma: -math.Pi + 0.02},
	}
	for _, p := range poses {
		tr := FromPose6(p)
		require.True(t, tr.IsValid())
		back := tr.ToPose6()
		assert.InDelta(t, p.TX, back.TX, 1e-12)
		assert.InDelta(t, p.TY, back.TY, 1e-12)
		assert.InDelta(t, p.TZ, back.TZ, 1e-12)
		assert.InDelta(t, p.Alpha, back.Alpha, 1e-9)
		assert.InDelta(t, p.Beta, back.Beta, 1e-9)
		assert.InDelta(t, p.Gamma, back.Gamma, 1e-9)
		assertTransformNear(t, tr, FromPose6(back), 1e-9)
	}
}

func TestPose6_GimbalLockReproducesTransform(t *testing.T) {
	for _, beta := range []float64{90 * deg, -90 * deg} {
		tr := FromPose6(Pose6{TX: 1, Alpha: 0.3, Beta: beta, Gamma: 0.4})
		back := tr.ToPose6()
		assert.Equal(t, 0.0, back.Gamma)
		assertTransformNear(t, tr, FromPose6(back), 1e-7)
	}
}

func TestCompose_AppliesRightFirst(t *testing.T) {
	rot := FromPose6(Pose6{Gamma: 90 * deg})
	move := Translate(1, 0, 0)
	got := rot.Compose(move).Apply(r3.Vec{})
	assert.InDelta(t, 0, got.X, 1e-12)
	assert.InDelta(t, 1, got.Y, 1e-12)
}

func TestInverse(t *testing.T) {
	tr := FromPose6(Pose6{TX: 0.5, TY: -2, TZ: 1, Alpha: 0.2, Beta: -0.1, Gamma: 1.3})
	assertTransformNear(t, Identity(), tr.Compose(tr.Inverse()), 1e-12)
	assertTransformNear(t, Identity(), tr.Inverse().Compose(tr), 1e-12)
}

func TestApplyRotation_IgnoresTranslation(t *testing.T) {
	tr := FromPose6(Pose6{TX: 5, TY: 6, TZ: 7, Gamma: 90 * deg})
	n := tr.ApplyRotation(r3.Vec{X: 1})
	assert.InDelta(t, 0, n.X, 1e-12)
	assert.InDelta(t, 1, n.Y, 1e-12)
	assert.InDelta(t, 0, n.Z, 1e-12)
}

func TestAxisAngle(t *testing.T) {
	w := r3.Vec{X: 0.1, Y: -0.2, Z: 0.3}
	tr := AxisAngle(w)
	require.True(t, tr.IsValid())
	assert.InDelta(t, r3.Norm(w), tr.RotationAngle(), 1e-12)
	// The axis is a fixed point.
	got := tr.Apply(w)
	assert.InDelta(t, w.X, got.X, 1e-12)
	assert.InDelta(t, w.Y, got.Y, 1e-12)
	assert.InDelta(t, w.Z, got.Z, 1e-12)

	assertTransformNear(t, FromPose6(Pose6{Gamma: 0.25}), AxisAngle(r3.Vec{Z: 0.25}), 1e-12)
}

func TestDelta(t *testing.T) {
	a := FromPose6(Pose6{TX: 1, Gamma: 10 * deg})
	b := a.Compose(FromPose6(Pose6{TY: 0.3, Gamma: 5 * deg}))
	dt, da := Delta(a, b)
	assert.InDelta(t, 0.3, dt, 1e-12)
	assert.InDelta(t, 5*deg, da, 1e-9)
}

func TestIsValid_RejectsReflectionAndBadRow(t *testing.T) {
	refl := Identity()
	refl.T[0] = -1
	assert.False(t, refl.IsValid())

	bad := Identity()
	bad.T[12] = 0.5
	assert.False(t, bad.IsValid())
}

func TestQualityFromRMSE(t *testing.T) {
	tests := []struct {
		rmse float64
		want Quality
	}{
		{0.02, QualityExcellent},
		{0.05, QualityGood},
		{0.10, QualityGood},
		{0.15, QualityFair},
		{0.25, QualityFair},
		{0.35, QualityPoor},
		{-1, QualityUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, QualityFromRMSE(tt.rmse), "rmse=%v", tt.rmse)
	}
	assert.Equal(t, "poor (RMSE > 0.30m)", QualityPoor.String())
}
