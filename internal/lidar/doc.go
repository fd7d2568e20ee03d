// Package lidar holds what the keyframe registration layers share: the
// three logging streams and the error kinds.
//
// Layers, leaf first:
//
//	pose         rigid transforms and the single Euler convention
//	cloud        point clouds, filters, voxel grid, kd-tree index
//	normals      per-point normal estimation
//	plane        RANSAC plane fitting and segmentation
//	icp          point-to-point and point-to-plane ICP
//	keyframe     per-scan preprocessing state machine
//	registration single-phase and two-phase (split-plane) registration
//
// A layer may depend on the layers above it in this list, never below.
// No I/O happens in any of them.
package lidar
