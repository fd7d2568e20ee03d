package plane

import (
	"fmt"

	"github.com/banshee-data/scanmatch/internal/lidar"
	"github.com/banshee-data/scanmatch/internal/lidar/cloud"
)

// GroundParams configures ground-plane estimation.
type GroundParams struct {
	// MaxHeight restricts sampling to points below it (sensor frame), which
	// biases RANSAC toward the floor.
	MaxHeight float64
	// MinPoints is the fewest low points a ground fit is attempted on.
	MinPoints int
	RANSAC    Params
}

// FitGround fits the ground plane on the points of c below MaxHeight. The
// returned model has an upward normal (C >= 0).
func FitGround(c *cloud.Cloud, p GroundParams) (Model, error) {
	low := cloud.FilterByMaxHeight(c, p.MaxHeight)
	minPoints := max(p.MinPoints, 3)
	if low.Len() < minPoints {
		return Model{}, fmt.Errorf("ground fit: %d points below z=%.2f, need %d: %w",
			low.Len(), p.MaxHeight, minPoints, lidar.ErrDegenerateGeometry)
	}
	m, inliers, err := FitRANSAC(low, p.RANSAC)
	if err != nil {
		return Model{}, fmt.Errorf("ground fit: %w", err)
	}
	if len(inliers) < minPoints {
		return Model{}, fmt.Errorf("ground fit: %d inliers, need %d: %w", len(inliers), minPoints, lidar.ErrDegenerateGeometry)
	}
	m = m.Upward()
	lidar.Diagf("ground plane: %s (%d/%d low points)", m, len(inliers), low.Len())
	return m, nil
}
