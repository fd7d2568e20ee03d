// Package normals estimates per-point surface normals from local
// neighbourhoods.
package normals

import (
	"fmt"
	"runtime"

	"github.com/banshee-data/scanmatch/internal/lidar"
	"github.com/banshee-data/scanmatch/internal/lidar/cloud"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"
)

// minNeighbors is the smallest neighbourhood that defines a plane.
const minNeighbors = 3

// chunkSize is the number of points one worker handles per task.
const chunkSize = 1024

// Params configures normal estimation.
type Params struct {
	// Radius bounds the neighbourhood around each point (meters).
	Radius float64
	// MaxNeighbors caps the neighbourhood size; the nearest are kept.
	MaxNeighbors int
	// Origin is the sensor position normals are oriented toward.
	Origin r3.Vec
	// MaxUndefinedFraction is the largest tolerated fraction of points
	// without a normal. Zero disables the check.
	MaxUndefinedFraction float64
	// Workers bounds the goroutines used; <= 0 uses GOMAXPROCS.
	Workers int
}

// Stats summarises one estimation run.
type Stats struct {
	Points    int
	Undefined int
}

// UndefinedFraction returns the fraction of points left without a normal.
func (s Stats) UndefinedFraction() float64 {
	if s.Points == 0 {
		return 0
	}
	return float64(s.Undefined) / float64(s.Points)
}

// Estimate returns a copy of c carrying one normal per point. Each normal
// is the eigenvector of the smallest eigenvalue of the neighbourhood
// covariance, flipped so that n·(Origin − p) >= 0. Points with fewer than
// three neighbours get a zero normal, which point-to-plane ICP ignores.
//
// When the undefined fraction exceeds MaxUndefinedFraction the cloud is
// still returned, together with an error wrapping lidar.ErrDegenerateGeometry.
func Estimate(c *cloud.Cloud, p Params) (*cloud.Cloud, Stats, error) {
	if p.Radius <= 0 {
		return nil, Stats{}, fmt.Errorf("normal radius %g: %w", p.Radius, lidar.ErrInvalidConfig)
	}
	if p.MaxNeighbors > 0 && p.MaxNeighbors < minNeighbors {
		return nil, Stats{}, fmt.Errorf("max neighbors %d below %d: %w", p.MaxNeighbors, minNeighbors, lidar.ErrInvalidConfig)
	}

	out := c.Clone()
	out.Normals = make([]r3.Vec, out.Len())
	stats := Stats{Points: out.Len()}
	if out.Len() == 0 {
		return out, stats, nil
	}

	ix := cloud.NewIndex(out.Points)
	undefined := make([]int, (out.Len()+chunkSize-1)/chunkSize)

	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for chunk := range undefined {
		chunk := chunk
		g.Go(func() error {
			start := chunk * chunkSize
			end := min(start+chunkSize, out.Len())
			for i := start; i < end; i++ {
				n, ok := estimateOne(out.Points, ix, i, p)
				if !ok {
					undefined[chunk]++
					continue
				}
				out.Normals[i] = n
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, u := range undefined {
		stats.Undefined += u
	}
	lidar.Diagf("normals: %d points, %d undefined (radius=%.2f max_nn=%d)",
		stats.Points, stats.Undefined, p.Radius, p.MaxNeighbors)

	if p.MaxUndefinedFraction > 0 && stats.UndefinedFraction() > p.MaxUndefinedFraction {
		return out, stats, fmt.Errorf("%d of %d normals undefined (max fraction %.2f): %w",
			stats.Undefined, stats.Points, p.MaxUndefinedFraction, lidar.ErrDegenerateGeometry)
	}
	return out, stats, nil
}

// estimateOne computes the oriented normal of point i.
func estimateOne(points []r3.Vec, ix *cloud.Index, i int, p Params) (r3.Vec, bool) {
	nb := ix.Neighbors(points[i], p.Radius, p.MaxNeighbors)
	if len(nb) < minNeighbors {
		return r3.Vec{}, false
	}

	data := make([]float64, 0, 3*len(nb))
	for _, j := range nb {
		q := points[j]
		data = append(data, q.X, q.Y, q.Z)
	}
	n, ok := SmallestEigenvector(mat.NewDense(len(nb), 3, data))
	if !ok {
		return r3.Vec{}, false
	}
	if r3.Dot(n, r3.Sub(p.Origin, points[i])) < 0 {
		n = r3.Scale(-1, n)
	}
	return n, true
}

// SmallestEigenvector returns the unit eigenvector of the smallest
// eigenvalue of the covariance of the rows of x (one point per row).
func SmallestEigenvector(x *mat.Dense) (r3.Vec, bool) {
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, x, nil)

	var eigen mat.EigenSym
	if ok := eigen.Factorize(&cov, true); !ok {
		return r3.Vec{}, false
	}
	var vecs mat.Dense
	eigen.VectorsTo(&vecs)

	// Eigenvalues are in ascending order; column 0 is the normal direction.
	n := r3.Vec{X: vecs.At(0, 0), Y: vecs.At(1, 0), Z: vecs.At(2, 0)}
	norm := r3.Norm(n)
	if norm == 0 {
		return r3.Vec{}, false
	}
	return r3.Scale(1/norm, n), true
}
