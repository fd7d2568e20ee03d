package config

// Defaults for every tuning field. config/tuning.defaults.json carries the
// same values.
const (
	defaultMinRadius                  = 0.5
	defaultMaxRadius                  = 35.0
	defaultVoxelSize                  = 0.1
	defaultNormalRadius               = 0.3
	defaultNormalMaxNeighbors         = 30
	defaultMaxUndefinedNormalFraction = 0.5
	defaultGroundMaxHeight            = -0.5
	defaultGroundMinPoints            = 50
	defaultGroundNormalRadius         = 0.5
	defaultGroundMaxNeighbors         = 50
	defaultRANSACDistanceThreshold    = 0.01
	defaultRANSACSampleSize           = 3
	defaultRANSACIterations           = 1000
	defaultRANSACSeed                 = 1
	defaultSegmentThreshold           = 0.4
	defaultICPDistanceThreshold       = 0.3
	defaultICPMaxIterations           = 30
	defaultICPRelativeFitness         = 1e-6
	defaultICPRelativeRMSE            = 1e-6
	defaultKeyframeSampling           = 1
	defaultGroundPlaneRefitInterval   = 10
	defaultWorkers                    = 4
)

// GetMinRadius returns the min_radius value or the default.
func (c *TuningConfig) GetMinRadius() float64 {
	if c.MinRadius == nil {
		return defaultMinRadius
	}
	return *c.MinRadius
}

// GetMaxRadius returns the max_radius value or the default.
func (c *TuningConfig) GetMaxRadius() float64 {
	if c.MaxRadius == nil {
		return defaultMaxRadius
	}
	return *c.MaxRadius
}

// GetVoxelSize returns the voxel_size value or the default.
func (c *TuningConfig) GetVoxelSize() float64 {
	if c.VoxelSize == nil {
		return defaultVoxelSize
	}
	return *c.VoxelSize
}

// GetNormalRadius returns the normal_radius value or the default.
func (c *TuningConfig) GetNormalRadius() float64 {
	if c.NormalRadius == nil {
		return defaultNormalRadius
	}
	return *c.NormalRadius
}

// GetNormalMaxNeighbors returns the normal_max_neighbors value or the default.
func (c *TuningConfig) GetNormalMaxNeighbors() int {
	if c.NormalMaxNeighbors == nil {
		return defaultNormalMaxNeighbors
	}
	return *c.NormalMaxNeighbors
}

// GetMaxUndefinedNormalFraction returns the max_undefined_normal_fraction value or the default.
func (c *TuningConfig) GetMaxUndefinedNormalFraction() float64 {
	if c.MaxUndefinedNormalFraction == nil {
		return defaultMaxUndefinedNormalFraction
	}
	return *c.MaxUndefinedNormalFraction
}

// GetGroundMaxHeight returns the ground_max_height value or the default.
func (c *TuningConfig) GetGroundMaxHeight() float64 {
	if c.GroundMaxHeight == nil {
		return defaultGroundMaxHeight
	}
	return *c.GroundMaxHeight
}

// GetGroundMinPoints returns the ground_min_points value or the default.
func (c *TuningConfig) GetGroundMinPoints() int {
	if c.GroundMinPoints == nil {
		return defaultGroundMinPoints
	}
	return *c.GroundMinPoints
}

// GetGroundNormalRadius returns the ground_normal_radius value or the default.
func (c *TuningConfig) GetGroundNormalRadius() float64 {
	if c.GroundNormalRadius == nil {
		return defaultGroundNormalRadius
	}
	return *c.GroundNormalRadius
}

// GetGroundMaxNeighbors returns the ground_max_neighbors value or the default.
func (c *TuningConfig) GetGroundMaxNeighbors() int {
	if c.GroundMaxNeighbors == nil {
		return defaultGroundMaxNeighbors
	}
	return *c.GroundMaxNeighbors
}

// GetRANSACDistanceThreshold returns the ransac_distance_threshold value or the default.
func (c *TuningConfig) GetRANSACDistanceThreshold() float64 {
	if c.RANSACDistanceThreshold == nil {
		return defaultRANSACDistanceThreshold
	}
	return *c.RANSACDistanceThreshold
}

// GetRANSACSampleSize returns the ransac_sample_size value or the default.
func (c *TuningConfig) GetRANSACSampleSize() int {
	if c.RANSACSampleSize == nil {
		return defaultRANSACSampleSize
	}
	return *c.RANSACSampleSize
}

// GetRANSACIterations returns the ransac_iterations value or the default.
func (c *TuningConfig) GetRANSACIterations() int {
	if c.RANSACIterations == nil {
		return defaultRANSACIterations
	}
	return *c.RANSACIterations
}

// GetRANSACSeed returns the ransac_seed value or the default.
func (c *TuningConfig) GetRANSACSeed() int64 {
	if c.RANSACSeed == nil {
		return defaultRANSACSeed
	}
	return *c.RANSACSeed
}

// GetSegmentThreshold returns the segment_threshold value or the default.
func (c *TuningConfig) GetSegmentThreshold() float64 {
	if c.SegmentThreshold == nil {
		return defaultSegmentThreshold
	}
	return *c.SegmentThreshold
}

// GetICPDistanceThreshold returns the icp_distance_threshold value or the default.
func (c *TuningConfig) GetICPDistanceThreshold() float64 {
	if c.ICPDistanceThreshold == nil {
		return defaultICPDistanceThreshold
	}
	return *c.ICPDistanceThreshold
}

// GetICPMaxIterations returns the icp_max_iterations value or the default.
func (c *TuningConfig) GetICPMaxIterations() int {
	if c.ICPMaxIterations == nil {
		return defaultICPMaxIterations
	}
	return *c.ICPMaxIterations
}

// GetICPRelativeFitness returns the icp_relative_fitness value or the default.
func (c *TuningConfig) GetICPRelativeFitness() float64 {
	if c.ICPRelativeFitness == nil {
		return defaultICPRelativeFitness
	}
	return *c.ICPRelativeFitness
}

// GetICPRelativeRMSE returns the icp_relative_rmse value or the default.
func (c *TuningConfig) GetICPRelativeRMSE() float64 {
	if c.ICPRelativeRMSE == nil {
		return defaultICPRelativeRMSE
	}
	return *c.ICPRelativeRMSE
}

// GetKeyframeSampling returns the keyframe_sampling value or the default.
func (c *TuningConfig) GetKeyframeSampling() int {
	if c.KeyframeSampling == nil {
		return defaultKeyframeSampling
	}
	return *c.KeyframeSampling
}

// GetGroundPlaneRefitInterval returns the ground_plane_refit_interval value
// or the default. Zero means a reused plane is never refitted.
func (c *TuningConfig) GetGroundPlaneRefitInterval() int {
	if c.GroundPlaneRefitInterval == nil {
		return defaultGroundPlaneRefitInterval
	}
	return *c.GroundPlaneRefitInterval
}

// GetWorkers returns the workers value or the default.
func (c *TuningConfig) GetWorkers() int {
	if c.Workers == nil {
		return defaultWorkers
	}
	return *c.Workers
}

// GetICPMethod returns the icp_method value or the default.
func (c *TuningConfig) GetICPMethod() string {
	if c.ICPMethod == nil || *c.ICPMethod == "" {
		return ICPPointToPlane
	}
	return *c.ICPMethod
}

// GetRegistrationMethod returns the registration_method value or the default.
func (c *TuningConfig) GetRegistrationMethod() string {
	if c.RegistrationMethod == nil || *c.RegistrationMethod == "" {
		return MethodTwoPlane
	}
	return *c.RegistrationMethod
}

// GetReuseGroundPlane returns the reuse_ground_plane value or the default.
func (c *TuningConfig) GetReuseGroundPlane() bool {
	if c.ReuseGroundPlane == nil {
		return true // default: later keyframes reuse the previous ground model
	}
	return *c.ReuseGroundPlane
}
