package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// Registration methods accepted by registration_method.
const (
	MethodSimple   = "simple"
	MethodTwoPlane = "two-plane"
)

// ICP error metrics accepted by icp_method.
const (
	ICPPointToPlane = "point_to_plane"
	ICPPointToPoint = "point_to_point"
)

// TuningConfig represents the root configuration for preprocessing,
// registration and scan matching. Every field is optional; the Get*
// accessors fall back to the defaults for fields left unset, so partial
// files are safe.
type TuningConfig struct {
	// Preprocessing params
	MinRadius                  *float64 `json:"min_radius,omitempty" yaml:"min_radius,omitempty"`
	MaxRadius                  *float64 `json:"max_radius,omitempty" yaml:"max_radius,omitempty"`
	VoxelSize                  *float64 `json:"voxel_size,omitempty" yaml:"voxel_size,omitempty"`
	NormalRadius               *float64 `json:"normal_radius,omitempty" yaml:"normal_radius,omitempty"`
	NormalMaxNeighbors         *int     `json:"normal_max_neighbors,omitempty" yaml:"normal_max_neighbors,omitempty"`
	MaxUndefinedNormalFraction *float64 `json:"max_undefined_normal_fraction,omitempty" yaml:"max_undefined_normal_fraction,omitempty"`

	// Ground segmentation params
	GroundMaxHeight         *float64 `json:"ground_max_height,omitempty" yaml:"ground_max_height,omitempty"`
	GroundMinPoints         *int     `json:"ground_min_points,omitempty" yaml:"ground_min_points,omitempty"`
	GroundNormalRadius      *float64 `json:"ground_normal_radius,omitempty" yaml:"ground_normal_radius,omitempty"`
	GroundMaxNeighbors      *int     `json:"ground_max_neighbors,omitempty" yaml:"ground_max_neighbors,omitempty"`
	RANSACDistanceThreshold *float64 `json:"ransac_distance_threshold,omitempty" yaml:"ransac_distance_threshold,omitempty"`
	RANSACSampleSize        *int     `json:"ransac_sample_size,omitempty" yaml:"ransac_sample_size,omitempty"`
	RANSACIterations        *int     `json:"ransac_iterations,omitempty" yaml:"ransac_iterations,omitempty"`
	RANSACSeed              *int64   `json:"ransac_seed,omitempty" yaml:"ransac_seed,omitempty"`
	SegmentThreshold        *float64 `json:"segment_threshold,omitempty" yaml:"segment_threshold,omitempty"`

	// ICP params
	ICPMethod            *string  `json:"icp_method,omitempty" yaml:"icp_method,omitempty"`
	ICPDistanceThreshold *float64 `json:"icp_distance_threshold,omitempty" yaml:"icp_distance_threshold,omitempty"`
	ICPMaxIterations     *int     `json:"icp_max_iterations,omitempty" yaml:"icp_max_iterations,omitempty"`
	ICPRelativeFitness   *float64 `json:"icp_relative_fitness,omitempty" yaml:"icp_relative_fitness,omitempty"`
	ICPRelativeRMSE      *float64 `json:"icp_relative_rmse,omitempty" yaml:"icp_relative_rmse,omitempty"`

	// Scan matching params
	RegistrationMethod       *string `json:"registration_method,omitempty" yaml:"registration_method,omitempty"`
	KeyframeSampling         *int    `json:"keyframe_sampling,omitempty" yaml:"keyframe_sampling,omitempty"`
	ReuseGroundPlane         *bool   `json:"reuse_ground_plane,omitempty" yaml:"reuse_ground_plane,omitempty"`
	GroundPlaneRefitInterval *int    `json:"ground_plane_refit_interval,omitempty" yaml:"ground_plane_refit_interval,omitempty"`
	Workers                  *int    `json:"workers,omitempty" yaml:"workers,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field set to its
// default. It mirrors DefaultConfigPath.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		MinRadius:                  ptrFloat64(defaultMinRadius),
		MaxRadius:                  ptrFloat64(defaultMaxRadius),
		VoxelSize:                  ptrFloat64(defaultVoxelSize),
		NormalRadius:               ptrFloat64(defaultNormalRadius),
		NormalMaxNeighbors:         ptrInt(defaultNormalMaxNeighbors),
		MaxUndefinedNormalFraction: ptrFloat64(defaultMaxUndefinedNormalFraction),
		GroundMaxHeight:            ptrFloat64(defaultGroundMaxHeight),
		GroundMinPoints:            ptrInt(defaultGroundMinPoints),
		GroundNormalRadius:         ptrFloat64(defaultGroundNormalRadius),
		GroundMaxNeighbors:         ptrInt(defaultGroundMaxNeighbors),
		RANSACDistanceThreshold:    ptrFloat64(defaultRANSACDistanceThreshold),
		RANSACSampleSize:           ptrInt(defaultRANSACSampleSize),
		RANSACIterations:           ptrInt(defaultRANSACIterations),
		RANSACSeed:                 ptrInt64(defaultRANSACSeed),
		SegmentThreshold:           ptrFloat64(defaultSegmentThreshold),
		ICPMethod:                  ptrString(ICPPointToPlane),
		ICPDistanceThreshold:       ptrFloat64(defaultICPDistanceThreshold),
		ICPMaxIterations:           ptrInt(defaultICPMaxIterations),
		ICPRelativeFitness:         ptrFloat64(defaultICPRelativeFitness),
		ICPRelativeRMSE:            ptrFloat64(defaultICPRelativeRMSE),
		RegistrationMethod:         ptrString(MethodTwoPlane),
		KeyframeSampling:           ptrInt(defaultKeyframeSampling),
		ReuseGroundPlane:           ptrBool(true),
		GroundPlaneRefitInterval:   ptrInt(defaultGroundPlaneRefitInterval),
		Workers:                    ptrInt(defaultWorkers),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON or YAML file.
// The file is validated to ensure it has a .json, .yaml or .yml extension
// and is under the max file size. Fields omitted from the file retain
// their default values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse into an empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the file.
	cfg := EmptyTuningConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,          // from internal/config/
		"../../../" + DefaultConfigPath,       // from internal/lidar/keyframe/
		"../../../../" + DefaultConfigPath,    // deeper packages
		"../../../../../" + DefaultConfigPath, // even deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	positive := []struct {
		name string
		v    *float64
	}{
		{"max_radius", c.MaxRadius},
		{"normal_radius", c.NormalRadius},
		{"ground_normal_radius", c.GroundNormalRadius},
		{"ransac_distance_threshold", c.RANSACDistanceThreshold},
		{"segment_threshold", c.SegmentThreshold},
		{"icp_distance_threshold", c.ICPDistanceThreshold},
	}
	for _, f := range positive {
		if f.v != nil && *f.v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", f.name, *f.v)
		}
	}

	if c.MinRadius != nil && *c.MinRadius < 0 {
		return fmt.Errorf("min_radius must be non-negative, got %f", *c.MinRadius)
	}
	if lo, hi := c.GetMinRadius(), c.GetMaxRadius(); lo >= hi {
		return fmt.Errorf("min_radius (%f) must be less than max_radius (%f)", lo, hi)
	}
	// A zero voxel size disables downsampling.
	if c.VoxelSize != nil && *c.VoxelSize < 0 {
		return fmt.Errorf("voxel_size must be non-negative, got %f", *c.VoxelSize)
	}
	if c.MaxUndefinedNormalFraction != nil {
		if f := *c.MaxUndefinedNormalFraction; f < 0 || f > 1 {
			return fmt.Errorf("max_undefined_normal_fraction must be between 0 and 1, got %f", f)
		}
	}

	for name, v := range map[string]*int{
		"normal_max_neighbors": c.NormalMaxNeighbors,
		"ground_max_neighbors": c.GroundMaxNeighbors,
	} {
		if v != nil && *v != 0 && *v < 3 {
			return fmt.Errorf("%s must be 0 (unbounded) or at least 3, got %d", name, *v)
		}
	}
	if c.RANSACSampleSize != nil && *c.RANSACSampleSize < 3 {
		return fmt.Errorf("ransac_sample_size must be at least 3, got %d", *c.RANSACSampleSize)
	}
	for name, v := range map[string]*int{
		"ransac_iterations":  c.RANSACIterations,
		"icp_max_iterations": c.ICPMaxIterations,
		"keyframe_sampling":  c.KeyframeSampling,
	} {
		if v != nil && *v < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", name, *v)
		}
	}
	if c.GroundMinPoints != nil && *c.GroundMinPoints < 0 {
		return fmt.Errorf("ground_min_points must be non-negative, got %d", *c.GroundMinPoints)
	}
	if c.GroundPlaneRefitInterval != nil && *c.GroundPlaneRefitInterval < 0 {
		return fmt.Errorf("ground_plane_refit_interval must be non-negative, got %d", *c.GroundPlaneRefitInterval)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.ICPRelativeFitness != nil && *c.ICPRelativeFitness < 0 {
		return fmt.Errorf("icp_relative_fitness must be non-negative, got %g", *c.ICPRelativeFitness)
	}
	if c.ICPRelativeRMSE != nil && *c.ICPRelativeRMSE < 0 {
		return fmt.Errorf("icp_relative_rmse must be non-negative, got %g", *c.ICPRelativeRMSE)
	}

	if c.ICPMethod != nil {
		switch *c.ICPMethod {
		case ICPPointToPlane, ICPPointToPoint:
		default:
			return fmt.Errorf("icp_method must be %q or %q, got %q", ICPPointToPlane, ICPPointToPoint, *c.ICPMethod)
		}
	}
	if c.RegistrationMethod != nil {
		switch *c.RegistrationMethod {
		case MethodSimple, MethodTwoPlane:
		default:
			return fmt.Errorf("registration_method must be %q or %q, got %q", MethodSimple, MethodTwoPlane, *c.RegistrationMethod)
		}
	}

	return nil
}
