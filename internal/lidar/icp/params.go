// Package icp aligns a source cloud onto a target cloud with the iterative
// closest point algorithm.
package icp

import (
	"fmt"

	"github.com/banshee-data/scanmatch/internal/lidar"
)

// Method selects the ICP error metric.
type Method int

const (
	// PointToPlane minimises residuals along target normals.
	PointToPlane Method = iota
	// PointToPoint minimises Euclidean distances (closed-form SVD step).
	PointToPoint
)

func (m Method) String() string {
	switch m {
	case PointToPlane:
		return "point-to-plane"
	case PointToPoint:
		return "point-to-point"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// Params configures one registration.
type Params struct {
	Method Method
	// DistanceThreshold is the hard correspondence rejection distance (meters).
	DistanceThreshold float64
	MaxIterations     int
	// RelativeFitness and RelativeRMSE are the convergence tolerances; both
	// changes must fall below them between consecutive iterations.
	RelativeFitness float64
	RelativeRMSE    float64
	// Workers bounds the goroutines used for correspondence search;
	// <= 0 uses GOMAXPROCS.
	Workers int
}

// DefaultParams returns point-to-plane ICP with a 0.3 m threshold and at
// most 30 iterations.
func DefaultParams() Params {
	return Params{
		Method:            PointToPlane,
		DistanceThreshold: 0.3,
		MaxIterations:     30,
		RelativeFitness:   1e-6,
		RelativeRMSE:      1e-6,
	}
}

// Validate reports invalid parameters as lidar.ErrInvalidConfig.
func (p Params) Validate() error {
	switch {
	case p.Method != PointToPlane && p.Method != PointToPoint:
		return fmt.Errorf("icp method %v: %w", p.Method, lidar.ErrInvalidConfig)
	case p.DistanceThreshold <= 0:
		return fmt.Errorf("icp distance threshold %g: %w", p.DistanceThreshold, lidar.ErrInvalidConfig)
	case p.MaxIterations <= 0:
		return fmt.Errorf("icp max iterations %d: %w", p.MaxIterations, lidar.ErrInvalidConfig)
	case p.RelativeFitness < 0 || p.RelativeRMSE < 0:
		return fmt.Errorf("icp tolerances %g/%g: %w", p.RelativeFitness, p.RelativeRMSE, lidar.ErrInvalidConfig)
	}
	return nil
}
