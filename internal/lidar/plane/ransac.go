package plane

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/banshee-data/scanmatch/internal/lidar"
	"github.com/banshee-data/scanmatch/internal/lidar/cloud"
	"github.com/banshee-data/scanmatch/internal/lidar/normals"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// degenerateSampleEps rejects samples whose points are (nearly) collinear.
const degenerateSampleEps = 1e-12

// Params configures RANSAC plane fitting.
type Params struct {
	DistanceThreshold float64
	// SampleSize is the number of points per hypothesis; 3 if zero.
	SampleSize int
	Iterations int
	// Rand drives sampling. When nil, each call draws from a fresh source
	// seeded with Seed, so runs repeat and concurrent fits share nothing.
	Rand *rand.Rand
	Seed int64
}

// FitRANSAC estimates the plane supported by the most points of c. Each of
// Iterations trials fits a plane through SampleSize distinct random points
// and counts points within DistanceThreshold of it; a later trial replaces
// the best only with a strictly larger count, so ties keep the first found.
// It returns the model and the indices of its inliers.
func FitRANSAC(c *cloud.Cloud, p Params) (Model, []int, error) {
	k := p.SampleSize
	if k == 0 {
		k = 3
	}
	if k < 3 {
		return Model{}, nil, fmt.Errorf("ransac sample size %d: %w", k, lidar.ErrInvalidConfig)
	}
	if p.DistanceThreshold <= 0 || p.Iterations <= 0 {
		return Model{}, nil, fmt.Errorf("ransac threshold %g iterations %d: %w", p.DistanceThreshold, p.Iterations, lidar.ErrInvalidConfig)
	}
	if c.Len() < k {
		return Model{}, nil, fmt.Errorf("ransac needs %d points, cloud has %d: %w", k, c.Len(), lidar.ErrInsufficientPoints)
	}
	rng := p.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(p.Seed))
	}

	var (
		best      Model
		bestCount = -1
		sample    = make([]int, k)
		pts       = make([]r3.Vec, k)
	)
	for it := 0; it < p.Iterations; it++ {
		sampleDistinct(rng, c.Len(), sample)
		for i, idx := range sample {
			pts[i] = c.Points[idx]
		}
		m, ok := fitSample(pts)
		if !ok {
			continue
		}
		count := countInliers(c, m, p.DistanceThreshold)
		if count > bestCount {
			best, bestCount = m, count
		}
	}
	if bestCount < 0 {
		return Model{}, nil, fmt.Errorf("no non-degenerate sample in %d iterations: %w", p.Iterations, lidar.ErrDegenerateGeometry)
	}
	return best, inlierIndices(c, best, p.DistanceThreshold), nil
}

// sampleDistinct fills dst with distinct indices in [0, n).
func sampleDistinct(rng *rand.Rand, n int, dst []int) {
	for i := 0; i < len(dst); {
		v := rng.Intn(n)
		if !contains(dst[:i], v) {
			dst[i] = v
			i++
		}
	}
}

func contains(s []int, v int) bool {
	for _, u := range s {
		if u == v {
			return true
		}
	}
	return false
}

// fitSample returns the plane through three points, or the least-squares
// plane through more.
func fitSample(pts []r3.Vec) (Model, bool) {
	if len(pts) == 3 {
		n := r3.Cross(r3.Sub(pts[1], pts[0]), r3.Sub(pts[2], pts[0]))
		if r3.Norm2(n) < degenerateSampleEps {
			return Model{}, false
		}
		m, err := ThroughPoint(r3.Unit(n), pts[0])
		return m, err == nil
	}
	return FitLeastSquares(pts)
}

// FitLeastSquares returns the plane minimising squared perpendicular
// distances to pts: it passes through their centroid with the normal of
// smallest covariance.
func FitLeastSquares(pts []r3.Vec) (Model, bool) {
	if len(pts) < 3 {
		return Model{}, false
	}
	data := make([]float64, 0, 3*len(pts))
	var centroid r3.Vec
	for _, q := range pts {
		data = append(data, q.X, q.Y, q.Z)
		centroid = r3.Add(centroid, q)
	}
	centroid = r3.Scale(1/float64(len(pts)), centroid)
	n, ok := normals.SmallestEigenvector(mat.NewDense(len(pts), 3, data))
	if !ok {
		return Model{}, false
	}
	m, err := ThroughPoint(n, centroid)
	return m, err == nil
}

func countInliers(c *cloud.Cloud, m Model, threshold float64) int {
	var n int
	for _, q := range c.Points {
		if math.Abs(m.Distance(q)) <= threshold {
			n++
		}
	}
	return n
}

func inlierIndices(c *cloud.Cloud, m Model, threshold float64) []int {
	var idx []int
	for i, q := range c.Points {
		if math.Abs(m.Distance(q)) <= threshold {
			idx = append(idx, i)
		}
	}
	return idx
}

// Segment partitions every point of c by perpendicular distance to m:
// points strictly closer than threshold go to inliers, the rest to
// outliers. Normals follow their points.
func Segment(c *cloud.Cloud, m Model, threshold float64) (inliers, outliers *cloud.Cloud) {
	var idx []int
	for i, q := range c.Points {
		if math.Abs(m.Distance(q)) < threshold {
			idx = append(idx, i)
		}
	}
	return cloud.Select(c, idx, false), cloud.Select(c, idx, true)
}
