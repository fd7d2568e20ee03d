// Package registration estimates the rigid transform between two
// preprocessed keyframes, either with one ICP over the filtered clouds or
// with separate ground and non-ground ICPs whose poses are fused.
package registration

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/scanmatch/internal/config"
	"github.com/banshee-data/scanmatch/internal/lidar"
	"github.com/banshee-data/scanmatch/internal/lidar/cloud"
	"github.com/banshee-data/scanmatch/internal/lidar/icp"
	"github.com/banshee-data/scanmatch/internal/lidar/keyframe"
	"github.com/banshee-data/scanmatch/internal/lidar/pose"
)

var (
	// ErrNotPreprocessed is returned when a keyframe has not reached
	// keyframe.StateDone.
	ErrNotPreprocessed = errors.New("keyframe not preprocessed")
	// ErrNotSegmented is returned by two-phase registration when a keyframe
	// has no ground segmentation.
	ErrNotSegmented = errors.New("keyframe not segmented")
)

// Method selects the registration strategy.
type Method int

const (
	// MethodSinglePhase runs one ICP over the filtered clouds.
	MethodSinglePhase Method = iota
	// MethodTwoPhase runs ground and non-ground ICPs and fuses them.
	MethodTwoPhase
)

func (m Method) String() string {
	switch m {
	case MethodSinglePhase:
		return config.MethodSimple
	case MethodTwoPhase:
		return config.MethodTwoPlane
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod maps a registration_method config value to a Method.
func ParseMethod(s string) (Method, error) {
	switch s {
	case config.MethodSimple:
		return MethodSinglePhase, nil
	case config.MethodTwoPlane:
		return MethodTwoPhase, nil
	default:
		return 0, fmt.Errorf("registration method %q: %w", s, lidar.ErrInvalidConfig)
	}
}

// Result is the outcome of registering keyframe b onto keyframe a.
// Transform maps points of b's frame into a's frame.
type Result struct {
	Method    Method
	Transform pose.Transform
	Pose      pose.Pose6

	// Single is set by single-phase registration.
	Single icp.Result
	// Ground and NonGround are set by two-phase registration, with the
	// Pose6 decomposition of each transform.
	Ground        icp.Result
	NonGround     icp.Result
	GroundPose    pose.Pose6
	NonGroundPose pose.Pose6

	Fitness       float64
	RMSE          float64
	LowConfidence bool
}

// Quality returns the RMSE quality band of the result.
func (r Result) Quality() pose.Quality {
	return pose.QualityFromRMSE(r.RMSE)
}

// Registrar registers keyframe pairs. It holds no per-pair state and is
// safe for concurrent use.
type Registrar struct {
	cfg config.Registration
}

// NewRegistrar returns a Registrar using cfg.
func NewRegistrar(cfg config.Registration) *Registrar {
	return &Registrar{cfg: cfg}
}

// Register dispatches to the single- or two-phase method.
func (r *Registrar) Register(a, b *keyframe.Keyframe, initial pose.Transform, m Method) (Result, error) {
	switch m {
	case MethodSinglePhase:
		return r.RegisterSinglePhase(a, b, initial)
	case MethodTwoPhase:
		return r.RegisterTwoPhase(a, b, initial)
	default:
		return Result{Method: m, Transform: initial, Pose: initial.ToPose6(), LowConfidence: true},
			fmt.Errorf("registration method %v: %w", m, lidar.ErrInvalidConfig)
	}
}

// RegisterSinglePhase aligns b's filtered cloud onto a's with one
// point-to-plane ICP starting from initial.
func (r *Registrar) RegisterSinglePhase(a, b *keyframe.Keyframe, initial pose.Transform) (Result, error) {
	res := Result{Method: MethodSinglePhase, Transform: initial, Pose: initial.ToPose6(), LowConfidence: true}
	if err := requireDone(a, b); err != nil {
		return res, err
	}

	single, err := icp.Register(b.Filtered(), a.Filtered(), r.cfg.ICP, initial)
	res.Single = single
	res.Transform = single.Transform
	res.Pose = single.Transform.ToPose6()
	res.Fitness, res.RMSE = single.Fitness, single.RMSE
	res.LowConfidence = single.LowConfidence()
	if err != nil {
		return res, r.failure(a, b, "single-phase icp", err)
	}
	lidar.Diagf("register %d->%d simple: %s", b.Timestamp(), a.Timestamp(), single)
	return res, nil
}

// RegisterTwoPhase aligns b onto a with a ground ICP and a non-ground ICP,
// both starting from initial, and fuses their poses with FusePoses.
func (r *Registrar) RegisterTwoPhase(a, b *keyframe.Keyframe, initial pose.Transform) (Result, error) {
	res := Result{Method: MethodTwoPhase, Transform: initial, Pose: initial.ToPose6(), LowConfidence: true}
	if err := requireDone(a, b); err != nil {
		return res, err
	}
	for _, k := range []*keyframe.Keyframe{a, b} {
		if !k.IsSegmented() {
			return res, fmt.Errorf("keyframe %d: %w", k.Timestamp(), ErrNotSegmented)
		}
	}

	ground, gErr := icp.Register(b.Ground(), a.Ground(), r.cfg.ICP, initial)
	nonGround, nErr := icp.Register(b.NonGround(), a.NonGround(), r.cfg.ICP, initial)

	res.Ground, res.NonGround = ground, nonGround
	res.GroundPose = ground.Transform.ToPose6()
	res.NonGroundPose = nonGround.Transform.ToPose6()
	res.Pose = FusePoses(res.GroundPose, res.NonGroundPose)
	res.Transform = pose.FromPose6(res.Pose)
	res.Fitness, res.RMSE = combine(b.Ground(), b.NonGround(), ground, nonGround)
	res.LowConfidence = ground.LowConfidence() || nonGround.LowConfidence()

	if gErr != nil {
		return res, r.failure(a, b, "ground icp", gErr)
	}
	if nErr != nil {
		return res, r.failure(a, b, "non-ground icp", nErr)
	}
	lidar.Diagf("register %d->%d two-plane: ground %s; non-ground %s; pose %s",
		b.Timestamp(), a.Timestamp(), ground, nonGround, res.Pose)
	return res, nil
}

// FusePoses takes the in-plane motion (TX, TY, Gamma) from the non-ground
// registration and the out-of-plane motion (TZ, Alpha, Beta) from the
// ground registration.
func FusePoses(ground, nonGround pose.Pose6) pose.Pose6 {
	return pose.Pose6{
		TX:    nonGround.TX,
		TY:    nonGround.TY,
		TZ:    ground.TZ,
		Alpha: ground.Alpha,
		Beta:  ground.Beta,
		Gamma: nonGround.Gamma,
	}
}

func (r *Registrar) failure(a, b *keyframe.Keyframe, stage string, err error) error {
	lidar.Opsf("register %d->%d: %s failed: %v", b.Timestamp(), a.Timestamp(), stage, err)
	return fmt.Errorf("register %d->%d: %s: %w: %w", b.Timestamp(), a.Timestamp(), stage, lidar.ErrRegistrationFailed, err)
}

func requireDone(kfs ...*keyframe.Keyframe) error {
	for _, k := range kfs {
		if k.State() != keyframe.StateDone {
			return fmt.Errorf("keyframe %d in state %s: %w", k.Timestamp(), k.State(), ErrNotPreprocessed)
		}
	}
	return nil
}

// combine returns the fitness and RMSE over both phases, weighting each by
// its source size and correspondence count.
func combine(groundSrc, nonGroundSrc *cloud.Cloud, ground, nonGround icp.Result) (fitness, rmse float64) {
	points := groundSrc.Len() + nonGroundSrc.Len()
	corr := ground.Correspondences + nonGround.Correspondences
	if points > 0 {
		fitness = float64(corr) / float64(points)
	}
	if corr > 0 {
		sq := ground.RMSE*ground.RMSE*float64(ground.Correspondences) +
			nonGround.RMSE*nonGround.RMSE*float64(nonGround.Correspondences)
		rmse = math.Sqrt(sq / float64(corr))
	}
	return fitness, rmse
}
