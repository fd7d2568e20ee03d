// Package keyframe prepares a single LIDAR scan for registration: range
// filtering, downsampling, normal estimation and ground segmentation.
package keyframe

import (
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/scanmatch/internal/config"
	"github.com/banshee-data/scanmatch/internal/lidar"
	"github.com/banshee-data/scanmatch/internal/lidar/cloud"
	"github.com/banshee-data/scanmatch/internal/lidar/normals"
	"github.com/banshee-data/scanmatch/internal/lidar/plane"
	"github.com/banshee-data/scanmatch/internal/lidar/pose"
)

// ErrKeyframeFailed is returned when preprocessing is requested on a
// keyframe that already failed.
var ErrKeyframeFailed = errors.New("keyframe preprocessing failed")

// State is the preprocessing stage of a keyframe.
type State int

const (
	StateRaw State = iota
	StateFiltered
	StateSegmented
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRaw:
		return "raw"
	case StateFiltered:
		return "filtered"
	case StateSegmented:
		return "segmented"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options selects the preprocessing variant.
type Options struct {
	// Simple stops after filtering and normal estimation; no ground
	// segmentation is performed.
	Simple bool
	// Plane, if set, is used as the ground model instead of fitting one.
	// The model is copied; the caller's value is never retained.
	Plane *plane.Model
}

// Keyframe is one scan and the clouds derived from it. It is safe for
// concurrent use.
type Keyframe struct {
	timestamp int64
	raw       *cloud.Cloud
	cfg       config.Preprocess

	mu        sync.Mutex
	state     State
	err       error
	filtered  *cloud.Cloud
	ground    *cloud.Cloud
	nonGround *cloud.Cloud
	model     plane.Model
	hasModel  bool
}

// New returns a keyframe in StateRaw. raw is not copied and must not be
// modified afterwards.
func New(timestamp int64, raw *cloud.Cloud, cfg config.Preprocess) *Keyframe {
	if raw == nil {
		raw = &cloud.Cloud{}
	}
	return &Keyframe{timestamp: timestamp, raw: raw, cfg: cfg}
}

// Preprocess runs the pipeline up to StateDone.
//
// raw → filtered applies the radius band, the voxel grid and fine normal
// estimation. Unless opts.Simple, the ground model (opts.Plane or a RANSAC
// fit on low points) splits filtered into ground and non-ground clouds,
// which receive coarse and fine normals respectively.
//
// Calling Preprocess on a finished keyframe is a no-op. Any error moves the
// keyframe to StateFailed; later calls return ErrKeyframeFailed.
func (k *Keyframe) Preprocess(opts Options) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	switch k.state {
	case StateDone:
		lidar.Opsf("keyframe %d: already preprocessed, skipping", k.timestamp)
		return nil
	case StateFailed:
		return fmt.Errorf("keyframe %d: %w: %w", k.timestamp, ErrKeyframeFailed, k.err)
	}

	if err := k.preprocess(opts); err != nil {
		k.fail(err)
		return fmt.Errorf("keyframe %d: %w", k.timestamp, err)
	}
	return nil
}

func (k *Keyframe) preprocess(opts Options) error {
	if k.state == StateRaw {
		if err := k.filter(); err != nil {
			return err
		}
		k.state = StateFiltered
		lidar.Diagf("keyframe %d: %d raw points, %d filtered", k.timestamp, k.raw.Len(), k.filtered.Len())
	}

	if opts.Simple {
		k.state = StateDone
		return nil
	}

	if k.state == StateFiltered {
		if err := k.segment(opts.Plane); err != nil {
			return err
		}
		k.state = StateSegmented
		lidar.Diagf("keyframe %d: ground %s, %d ground points, %d non-ground",
			k.timestamp, k.model, k.ground.Len(), k.nonGround.Len())
	}
	k.state = StateDone
	return nil
}

func (k *Keyframe) filter() error {
	banded, err := cloud.FilterByRadius(k.raw, k.cfg.MinRadius, k.cfg.MaxRadius)
	if err != nil {
		return err
	}
	down := cloud.VoxelDownsample(banded, k.cfg.VoxelSize)
	withNormals, _, err := normals.Estimate(down, k.cfg.Normals)
	if err != nil {
		return fmt.Errorf("fine normals: %w", err)
	}
	k.filtered = withNormals
	return nil
}

func (k *Keyframe) segment(supplied *plane.Model) error {
	if supplied != nil {
		k.model = *supplied
	} else {
		m, err := plane.FitGround(k.filtered, k.cfg.Ground)
		if err != nil {
			return err
		}
		k.model = m
	}
	k.hasModel = true

	ground, nonGround := plane.Segment(k.filtered, k.model, k.cfg.SegmentThreshold)
	ground, _, err := normals.Estimate(ground, k.cfg.GroundNormals)
	if err != nil {
		return fmt.Errorf("ground normals: %w", err)
	}
	nonGround, _, err = normals.Estimate(nonGround, k.cfg.Normals)
	if err != nil {
		return fmt.Errorf("non-ground normals: %w", err)
	}
	k.ground, k.nonGround = ground, nonGround
	return nil
}

// fail moves the keyframe to StateFailed and drops every derived cloud.
func (k *Keyframe) fail(err error) {
	k.state = StateFailed
	k.err = err
	k.filtered, k.ground, k.nonGround = nil, nil, nil
	lidar.Opsf("keyframe %d: preprocessing failed: %v", k.timestamp, err)
}

// Timestamp returns the scan timestamp.
func (k *Keyframe) Timestamp() int64 { return k.timestamp }

// Raw returns the unprocessed scan.
func (k *Keyframe) Raw() *cloud.Cloud { return k.raw }

// State returns the current preprocessing stage.
func (k *Keyframe) State() State {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state
}

// IsSegmented reports whether ground and non-ground clouds are available.
func (k *Keyframe) IsSegmented() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state == StateDone && k.ground != nil
}

// Filtered returns the filtered cloud with fine normals, or nil before
// filtering or after a failure.
func (k *Keyframe) Filtered() *cloud.Cloud {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.filtered
}

// Ground returns the ground cloud, or nil if the keyframe is not segmented.
func (k *Keyframe) Ground() *cloud.Cloud {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ground
}

// NonGround returns the non-ground cloud, or nil if the keyframe is not
// segmented.
func (k *Keyframe) NonGround() *cloud.Cloud {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.nonGround
}

// Plane returns a copy of the ground model and whether one is set.
func (k *Keyframe) Plane() (plane.Model, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.model, k.hasModel
}

// FilterMaxDistance returns the raw points closer than d to the sensor.
func (k *Keyframe) FilterMaxDistance(d float64) *cloud.Cloud {
	return cloud.FilterByMaxDistance(k.raw, d)
}

// FilterMaxHeight returns the raw points below z = h.
func (k *Keyframe) FilterMaxHeight(h float64) *cloud.Cloud {
	return cloud.FilterByMaxHeight(k.raw, h)
}

// TransformedFiltered returns a copy of the filtered cloud moved by t, or
// nil when there is no filtered cloud.
func (k *Keyframe) TransformedFiltered(t pose.Transform) *cloud.Cloud {
	f := k.Filtered()
	if f == nil {
		return nil
	}
	return cloud.Transform(f, t)
}
