package icp

import (
	"fmt"

	"github.com/banshee-data/scanmatch/internal/lidar/pose"
)

// Status is the terminal state of a registration.
type Status int

const (
	StatusConverged Status = iota
	StatusMaxIterations
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusConverged:
		return "converged"
	case StatusMaxIterations:
		return "max_iterations"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result describes one ICP run. Transform maps source coordinates into the
// target frame. Fitness is the fraction of source points with an accepted
// correspondence and RMSE the root mean square of their residuals, both
// measured at Transform.
type Result struct {
	Transform       pose.Transform
	Fitness         float64
	RMSE            float64
	Correspondences int
	Iterations      int
	Converged       bool
	Status          Status
}

// LowConfidence reports whether the result should not be trusted without
// review: the run failed or stopped at the iteration cap.
func (r Result) LowConfidence() bool {
	return r.Status != StatusConverged
}

// Quality returns the RMSE quality band; failed runs are unknown.
func (r Result) Quality() pose.Quality {
	if r.Status == StatusFailed {
		return pose.QualityUnknown
	}
	return pose.QualityFromRMSE(r.RMSE)
}

func (r Result) String() string {
	return fmt.Sprintf("%s after %d iterations: fitness=%.4f rmse=%.4f corr=%d",
		r.Status, r.Iterations, r.Fitness, r.RMSE, r.Correspondences)
}
