package icp

import (
	"errors"
	"fmt"
	"math"
	"runtime"

	"github.com/banshee-data/scanmatch/internal/lidar"
	"github.com/banshee-data/scanmatch/internal/lidar/cloud"
	"github.com/banshee-data/scanmatch/internal/lidar/pose"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// dampingFactor scales the Levenberg damping added to the point-to-plane
// normal equations, relative to their mean diagonal.
const dampingFactor = 1e-9

// chunkSize is the number of source points one worker matches per task.
const chunkSize = 2048

// correspondence pairs a transformed source point with its nearest target
// point. n is the target normal (point-to-plane only).
type correspondence struct {
	p, q, n  r3.Vec
	residual float64
}

type engine struct {
	source  *cloud.Cloud
	target  *cloud.Cloud
	ix      *cloud.Index
	params  Params
	maxD2   float64
	workers int
}

// Register aligns source onto target starting from initial. The returned
// transform maps source coordinates into the target frame.
//
// Each iteration matches every transformed source point to its nearest
// target point, rejects matches beyond DistanceThreshold, and solves for an
// incremental rigid motion that is composed on the left of the running
// estimate. The run converges when both the fitness and RMSE change by less
// than their tolerances. Reaching MaxIterations is not an error; the result
// carries StatusMaxIterations and reports LowConfidence.
//
// When no correspondence survives, Register returns an error wrapping
// lidar.ErrNoCorrespondences together with a StatusFailed result holding
// the last estimate that had correspondences.
func Register(source, target *cloud.Cloud, p Params, initial pose.Transform) (Result, error) {
	res := Result{Transform: initial, Status: StatusFailed}
	if err := p.Validate(); err != nil {
		return res, err
	}
	if p.Method == PointToPlane && !target.HasNormals() {
		return res, fmt.Errorf("point-to-plane target: %w", lidar.ErrMissingNormals)
	}
	if source.Len() == 0 || target.Len() == 0 {
		return res, fmt.Errorf("source has %d points, target %d: %w", source.Len(), target.Len(), lidar.ErrNoCorrespondences)
	}

	e := &engine{
		source:  source,
		target:  target,
		ix:      cloud.NewIndex(target.Points),
		params:  p,
		maxD2:   p.DistanceThreshold * p.DistanceThreshold,
		workers: p.Workers,
	}
	if e.workers <= 0 {
		e.workers = runtime.GOMAXPROCS(0)
	}

	corr := e.match(initial)
	if len(corr) == 0 {
		return res, fmt.Errorf("initial estimate: %w", lidar.ErrNoCorrespondences)
	}
	res.Fitness, res.RMSE = e.metrics(corr)
	res.Correspondences = len(corr)

	for it := 1; it <= p.MaxIterations; it++ {
		step, ok := e.step(corr)
		if !ok {
			// Nothing observable to correct; the estimate is final.
			res.Converged, res.Status = true, StatusConverged
			return res, nil
		}
		next := step.Compose(res.Transform)
		nextCorr := e.match(next)
		res.Iterations = it
		if len(nextCorr) == 0 {
			return res, fmt.Errorf("iteration %d: %w", it, lidar.ErrNoCorrespondences)
		}

		fitness, rmse := e.metrics(nextCorr)
		dFitness := math.Abs(fitness - res.Fitness)
		dRMSE := math.Abs(rmse - res.RMSE)
		res.Transform, res.Fitness, res.RMSE, res.Correspondences = next, fitness, rmse, len(nextCorr)
		corr = nextCorr

		if lidar.TraceEnabled() {
			lidar.Tracef("icp %s iter=%d fitness=%.6f rmse=%.6f corr=%d dfit=%.2e drmse=%.2e",
				p.Method, it, fitness, rmse, len(nextCorr), dFitness, dRMSE)
		}
		if dFitness < p.RelativeFitness && dRMSE < p.RelativeRMSE {
			res.Converged, res.Status = true, StatusConverged
			return res, nil
		}
	}
	res.Status = StatusMaxIterations
	return res, nil
}

// match finds correspondences for the source transformed by t. Queries run
// in parallel over chunks of the source; the index is read-only. The result
// keeps source order.
func (e *engine) match(t pose.Transform) []correspondence {
	n := e.source.Len()
	chunks := make([][]correspondence, (n+chunkSize-1)/chunkSize)

	var g errgroup.Group
	g.SetLimit(e.workers)
	for ci := range chunks {
		ci := ci
		g.Go(func() error {
			start := ci * chunkSize
			end := min(start+chunkSize, n)
			out := make([]correspondence, 0, end-start)
			for i := start; i < end; i++ {
				if c, ok := e.matchOne(t.Apply(e.source.Points[i])); ok {
					out = append(out, c)
				}
			}
			chunks[ci] = out
			return nil
		})
	}
	_ = g.Wait()

	var total int
	for _, c := range chunks {
		total += len(c)
	}
	all := make([]correspondence, 0, total)
	for _, c := range chunks {
		all = append(all, c...)
	}
	return all
}

func (e *engine) matchOne(p r3.Vec) (correspondence, bool) {
	j, d2 := e.ix.Nearest(p)
	if j < 0 || d2 > e.maxD2 {
		return correspondence{}, false
	}
	q := e.target.Points[j]
	if e.params.Method == PointToPoint {
		return correspondence{p: p, q: q, residual: math.Sqrt(d2)}, true
	}
	if !e.target.HasNormal(j) {
		return correspondence{}, false
	}
	n := e.target.Normals[j]
	return correspondence{p: p, q: q, n: n, residual: r3.Dot(r3.Sub(p, q), n)}, true
}

// metrics returns the fitness and RMSE of a correspondence set.
func (e *engine) metrics(corr []correspondence) (fitness, rmse float64) {
	var sum float64
	for _, c := range corr {
		sum += c.residual * c.residual
	}
	return float64(len(corr)) / float64(e.source.Len()), math.Sqrt(sum / float64(len(corr)))
}

func (e *engine) step(corr []correspondence) (pose.Transform, bool) {
	if e.params.Method == PointToPoint {
		return pointToPointStep(corr)
	}
	return pointToPlaneStep(corr)
}

// pointToPlaneStep linearises the residual (p−q)·n around the current
// estimate with rows J = [p×n, n] and solves the damped normal equations
// (JᵀJ + λI)x = −Jᵀr. Directions J never excites get a zero update.
func pointToPlaneStep(corr []correspondence) (pose.Transform, bool) {
	var ata [36]float64
	var atb [6]float64
	for _, c := range corr {
		pn := r3.Cross(c.p, c.n)
		j := [6]float64{pn.X, pn.Y, pn.Z, c.n.X, c.n.Y, c.n.Z}
		for a := 0; a < 6; a++ {
			atb[a] -= j[a] * c.residual
			for b := a; b < 6; b++ {
				ata[a*6+b] += j[a] * j[b]
			}
		}
	}
	var trace float64
	for a := 0; a < 6; a++ {
		trace += ata[a*6+a]
	}
	if trace == 0 {
		return pose.Transform{}, false
	}
	lambda := dampingFactor * trace / 6
	for a := 0; a < 6; a++ {
		ata[a*6+a] += lambda
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(mat.NewSymDense(6, ata[:])); !ok {
		return pose.Transform{}, false
	}
	var x mat.VecDense
	if err := chol.SolveVecTo(&x, mat.NewVecDense(6, atb[:])); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return pose.Transform{}, false
		}
	}

	step := pose.AxisAngle(r3.Vec{X: x.AtVec(0), Y: x.AtVec(1), Z: x.AtVec(2)})
	step.T[3], step.T[7], step.T[11] = x.AtVec(3), x.AtVec(4), x.AtVec(5)
	return step, true
}

// pointToPointStep returns the rigid motion that best maps the matched
// source points onto their targets (Kabsch).
func pointToPointStep(corr []correspondence) (pose.Transform, bool) {
	if len(corr) < 3 {
		return pose.Transform{}, false
	}
	var pc, qc r3.Vec
	for _, c := range corr {
		pc = r3.Add(pc, c.p)
		qc = r3.Add(qc, c.q)
	}
	inv := 1 / float64(len(corr))
	pc, qc = r3.Scale(inv, pc), r3.Scale(inv, qc)

	h := mat.NewDense(3, 3, nil)
	for _, c := range corr {
		a := r3.Sub(c.p, pc)
		b := r3.Sub(c.q, qc)
		av := [3]float64{a.X, a.Y, a.Z}
		bv := [3]float64{b.X, b.Y, b.Z}
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				h.Set(i, j, h.At(i, j)+av[i]*bv[j])
			}
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(h, mat.SVDFull); !ok {
		return pose.Transform{}, false
	}
	var u, v, r mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	r.Mul(&v, u.T())
	if mat.Det(&r) < 0 {
		for i := 0; i < 3; i++ {
			v.Set(i, 2, -v.At(i, 2))
		}
		r.Mul(&v, u.T())
	}

	var rot [9]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rot[i*3+j] = r.At(i, j)
		}
	}
	step := pose.FromRotationTranslation(rot, r3.Vec{})
	t := r3.Sub(qc, step.ApplyRotation(pc))
	step.T[3], step.T[7], step.T[11] = t.X, t.Y, t.Z
	return step, true
}
