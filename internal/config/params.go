package config

import (
	"github.com/banshee-data/scanmatch/internal/lidar/icp"
	"github.com/banshee-data/scanmatch/internal/lidar/normals"
	"github.com/banshee-data/scanmatch/internal/lidar/plane"
)

// Preprocess holds the typed parameters of keyframe preprocessing.
type Preprocess struct {
	MinRadius float64
	MaxRadius float64
	// VoxelSize <= 0 skips downsampling.
	VoxelSize        float64
	Normals          normals.Params
	GroundNormals    normals.Params
	Ground           plane.GroundParams
	SegmentThreshold float64
}

// Registration holds the typed parameters of pairwise registration.
type Registration struct {
	ICP icp.Params
}

// ScanMatch holds the parameters of sequence scan matching.
type ScanMatch struct {
	Method           string
	KeyframeSampling int
	ReuseGroundPlane bool
	// GroundPlaneRefit fits a fresh ground plane on every n-th keyframe
	// when ReuseGroundPlane is set. Zero fits only the first.
	GroundPlaneRefit int
	Workers          int
}

// Preprocess returns the keyframe preprocessing parameters.
func (c *TuningConfig) Preprocess() Preprocess {
	workers := c.GetWorkers()
	maxUndefined := c.GetMaxUndefinedNormalFraction()
	return Preprocess{
		MinRadius: c.GetMinRadius(),
		MaxRadius: c.GetMaxRadius(),
		VoxelSize: c.GetVoxelSize(),
		Normals: normals.Params{
			Radius:               c.GetNormalRadius(),
			MaxNeighbors:         c.GetNormalMaxNeighbors(),
			MaxUndefinedFraction: maxUndefined,
			Workers:              workers,
		},
		GroundNormals: normals.Params{
			Radius:               c.GetGroundNormalRadius(),
			MaxNeighbors:         c.GetGroundMaxNeighbors(),
			MaxUndefinedFraction: maxUndefined,
			Workers:              workers,
		},
		Ground: plane.GroundParams{
			MaxHeight: c.GetGroundMaxHeight(),
			MinPoints: c.GetGroundMinPoints(),
			RANSAC: plane.Params{
				DistanceThreshold: c.GetRANSACDistanceThreshold(),
				SampleSize:        c.GetRANSACSampleSize(),
				Iterations:        c.GetRANSACIterations(),
				Seed:              c.GetRANSACSeed(),
			},
		},
		SegmentThreshold: c.GetSegmentThreshold(),
	}
}

// Registration returns the pairwise registration parameters.
func (c *TuningConfig) Registration() Registration {
	method := icp.PointToPlane
	if c.GetICPMethod() == ICPPointToPoint {
		method = icp.PointToPoint
	}
	return Registration{
		ICP: icp.Params{
			Method:            method,
			DistanceThreshold: c.GetICPDistanceThreshold(),
			MaxIterations:     c.GetICPMaxIterations(),
			RelativeFitness:   c.GetICPRelativeFitness(),
			RelativeRMSE:      c.GetICPRelativeRMSE(),
			Workers:           c.GetWorkers(),
		},
	}
}

// ScanMatch returns the sequence scan matching parameters.
func (c *TuningConfig) ScanMatch() ScanMatch {
	return ScanMatch{
		Method:           c.GetRegistrationMethod(),
		KeyframeSampling: c.GetKeyframeSampling(),
		ReuseGroundPlane: c.GetReuseGroundPlane(),
		GroundPlaneRefit: c.GetGroundPlaneRefitInterval(),
		Workers:          c.GetWorkers(),
	}
}
