// Package plane fits planes with RANSAC and partitions clouds by their
// distance to a plane.
package plane

import (
	"fmt"
	"math"

	"github.com/banshee-data/scanmatch/internal/lidar"
	"gonum.org/v1/gonum/spatial/r3"
)

// Model is the plane A·x + B·y + C·z + D = 0 with (A, B, C) of unit length.
// It is a value type; copies never share state.
type Model struct {
	A, B, C, D float64
}

// NewModel normalises arbitrary coefficients so that (a, b, c) has unit
// length. A zero normal is a configuration error.
func NewModel(a, b, c, d float64) (Model, error) {
	n := math.Sqrt(a*a + b*b + c*c)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return Model{}, fmt.Errorf("plane (%g, %g, %g, %g) has no normal: %w", a, b, c, d, lidar.ErrInvalidConfig)
	}
	return Model{A: a / n, B: b / n, C: c / n, D: d / n}, nil
}

// ThroughPoint returns the plane with unit normal n that contains p.
func ThroughPoint(n, p r3.Vec) (Model, error) {
	return NewModel(n.X, n.Y, n.Z, -r3.Dot(n, p))
}

// Normal returns (A, B, C).
func (m Model) Normal() r3.Vec {
	return r3.Vec{X: m.A, Y: m.B, Z: m.C}
}

// Distance returns the signed perpendicular distance from p to the plane.
func (m Model) Distance(p r3.Vec) float64 {
	return m.A*p.X + m.B*p.Y + m.C*p.Z + m.D
}

// Flipped returns the same plane with the opposite normal.
func (m Model) Flipped() Model {
	return Model{A: -m.A, B: -m.B, C: -m.C, D: -m.D}
}

// Upward returns the model with a non-negative C, so ground normals point up.
func (m Model) Upward() Model {
	if m.C < 0 {
		return m.Flipped()
	}
	return m
}

// Coefficients returns (A, B, C, D).
func (m Model) Coefficients() [4]float64 {
	return [4]float64{m.A, m.B, m.C, m.D}
}

func (m Model) String() string {
	return fmt.Sprintf("%.3fx + %.3fy + %.3fz + %.3f = 0", m.A, m.B, m.C, m.D)
}
