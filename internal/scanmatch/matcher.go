// Package scanmatch estimates a trajectory from a sequence of LIDAR scans by
// registering consecutive keyframes and chaining the relative motions.
package scanmatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/scanmatch/internal/config"
	"github.com/banshee-data/scanmatch/internal/dataset"
	"github.com/banshee-data/scanmatch/internal/lidar"
	"github.com/banshee-data/scanmatch/internal/lidar/keyframe"
	"github.com/banshee-data/scanmatch/internal/lidar/pose"
	"github.com/banshee-data/scanmatch/internal/lidar/registration"
	"github.com/banshee-data/scanmatch/internal/timeutil"
)

// ErrInitialLength is returned when the initial poses do not line up with
// the timestamps.
var ErrInitialLength = errors.New("initial poses do not match timestamps")

// Matcher runs sequence scan matching. Source, Registrar and Config must be
// set; Preprocess configures keyframe preparation.
type Matcher struct {
	Source     dataset.ScanSource
	Registrar  *registration.Registrar
	Preprocess config.Preprocess
	Config     config.ScanMatch
	// Clock times each stage; RealClock when nil.
	Clock timeutil.Clock
}

// PairResult is the registration of keyframe Source onto keyframe Target,
// the one immediately before it.
type PairResult struct {
	Index  int
	Target int64
	Source int64
	// Initial is the relative guess the registration started from.
	Initial pose.Transform
	// Transform is the relative motion used for chaining: the registered
	// transform, or Initial when Err is set.
	Transform pose.Transform
	Result    registration.Result
	Err       error
	Elapsed   time.Duration
}

// Failed reports whether the pair fell back to its initial guess.
func (p PairResult) Failed() bool { return p.Err != nil }

// Output is the result of a Run.
type Output struct {
	Method     registration.Method
	Keyframes  []int64
	Pairs      []PairResult
	Trajectory []dataset.Stamped
}

// Failures returns the number of pairs that fell back to their guess.
func (o Output) Failures() int {
	var n int
	for _, p := range o.Pairs {
		if p.Failed() {
			n++
		}
	}
	return n
}

// Run matches the scans at timestamps. initial, when non-nil, holds one
// absolute pose per timestamp; relative guesses are taken from it and the
// trajectory starts at the first sampled keyframe's pose. With nil initial
// every guess is the identity and the trajectory starts at the identity.
//
// A pair that fails to register keeps its guess and records the error; only
// load errors and cancellation abort the run. A keyframe that fails
// preprocessing fails both pairs it belongs to, and their Err wraps the
// preprocessing error.
//
// With ReuseGroundPlane the ground model fitted on one keyframe is handed to
// the next, which assumes the terrain stays flat between them. The plane is
// refitted from scratch every GroundPlaneRefit keyframes, and whenever the
// previous keyframe has no plane.
func (m *Matcher) Run(ctx context.Context, timestamps []int64, initial []pose.Transform) (Output, error) {
	if initial != nil && len(initial) != len(timestamps) {
		return Output{}, fmt.Errorf("%d poses for %d timestamps: %w", len(initial), len(timestamps), ErrInitialLength)
	}
	method, err := registration.ParseMethod(m.Config.Method)
	if err != nil {
		return Output{}, err
	}
	clock := m.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	idx := sampleIndices(len(timestamps), m.Config.KeyframeSampling)
	out := Output{Method: method, Keyframes: make([]int64, len(idx))}
	absolute := make([]pose.Transform, len(idx))
	for i, j := range idx {
		out.Keyframes[i] = timestamps[j]
		absolute[i] = pose.Identity()
		if initial != nil {
			absolute[i] = initial[j]
		}
	}
	lidar.Opsf("scan matching %d of %d scans with %s registration", len(idx), len(timestamps), method)

	start := clock.Now()
	kfs, err := m.loadKeyframes(ctx, out.Keyframes)
	if err != nil {
		return Output{}, err
	}
	prepErrs, err := m.preprocess(ctx, kfs, method)
	if err != nil {
		return Output{}, err
	}
	lidar.Diagf("preprocessed %d keyframes in %v", len(kfs), clock.Since(start))

	guesses := pose.Relative(absolute)
	pairs, err := m.registerPairs(ctx, kfs, prepErrs, guesses, method, clock)
	if err != nil {
		return Output{}, err
	}
	out.Pairs = pairs

	rel := make([]pose.Transform, len(pairs))
	for i, p := range pairs {
		rel[i] = p.Transform
	}
	if len(absolute) > 0 {
		chained := pose.Chain(absolute[0], rel)
		out.Trajectory = make([]dataset.Stamped, len(chained))
		for i, t := range chained {
			out.Trajectory[i] = dataset.Stamped{Timestamp: out.Keyframes[i], Transform: t}
		}
	}
	lidar.Opsf("scan matching done: %d pairs, %d failed, %v", len(pairs), out.Failures(), clock.Since(start))
	return out, nil
}

// sampleIndices returns every step-th index of n, always including the
// first.
func sampleIndices(n, step int) []int {
	if step < 1 {
		step = 1
	}
	idx := make([]int, 0, (n+step-1)/step)
	for i := 0; i < n; i += step {
		idx = append(idx, i)
	}
	return idx
}

func (m *Matcher) workers() int {
	if m.Config.Workers > 0 {
		return m.Config.Workers
	}
	return 1
}

func (m *Matcher) loadKeyframes(ctx context.Context, timestamps []int64) ([]*keyframe.Keyframe, error) {
	kfs := make([]*keyframe.Keyframe, len(timestamps))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers())
	for i, ts := range timestamps {
		i, ts := i, ts
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			raw, err := m.Source.LoadScan(ts)
			if err != nil {
				return fmt.Errorf("load scan %d: %w", ts, err)
			}
			kfs[i] = keyframe.New(ts, raw, m.Preprocess)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return kfs, nil
}

// preprocess prepares every keyframe and returns each keyframe's
// preprocessing error, nil for those that succeeded. Only cancellation is
// returned as the second value. Plane reuse makes each keyframe wait for its
// predecessor, so it runs in order.
func (m *Matcher) preprocess(ctx context.Context, kfs []*keyframe.Keyframe, method registration.Method) ([]error, error) {
	errs := make([]error, len(kfs))
	if method == registration.MethodTwoPhase && m.Config.ReuseGroundPlane {
		for i, k := range kfs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			var opts keyframe.Options
			if i > 0 && !m.refitDue(i) {
				if prev, ok := kfs[i-1].Plane(); ok {
					opts.Plane = &prev
				}
			}
			errs[i] = k.Preprocess(opts)
		}
		return errs, nil
	}

	opts := keyframe.Options{Simple: method == registration.MethodSinglePhase}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers())
	for i, k := range kfs {
		i, k := i, k
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			errs[i] = k.Preprocess(opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return errs, nil
}

// refitDue reports whether keyframe i fits its own ground plane instead of
// reusing its predecessor's.
func (m *Matcher) refitDue(i int) bool {
	n := m.Config.GroundPlaneRefit
	return n > 0 && i%n == 0
}

func (m *Matcher) registerPairs(ctx context.Context, kfs []*keyframe.Keyframe, prepErrs []error, guesses []pose.Transform, method registration.Method, clock timeutil.Clock) ([]PairResult, error) {
	pairs := make([]PairResult, len(guesses))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers())
	for i, guess := range guesses {
		i, guess := i, guess
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			target, source := kfs[i], kfs[i+1]
			start := clock.Now()
			var (
				res registration.Result
				err error
			)
			if prepErr := errors.Join(prepErrs[i], prepErrs[i+1]); prepErr != nil {
				err = fmt.Errorf("%w: %w", registration.ErrNotPreprocessed, prepErr)
			} else {
				res, err = m.Registrar.Register(target, source, guess, method)
			}
			p := PairResult{
				Index:     i,
				Target:    target.Timestamp(),
				Source:    source.Timestamp(),
				Initial:   guess,
				Transform: res.Transform,
				Result:    res,
				Err:       err,
				Elapsed:   clock.Since(start),
			}
			if err != nil {
				p.Transform = guess
				lidar.Opsf("pair %d (%d->%d): falling back to initial guess: %v", i, p.Source, p.Target, err)
			} else {
				lidar.Diagf("pair %d (%d->%d): %s fitness %.3f rmse %.4f in %v",
					i, p.Source, p.Target, res.Pose, res.Fitness, res.RMSE, p.Elapsed)
			}
			pairs[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pairs, nil
}
