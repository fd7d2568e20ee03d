// Package testutil provides shared test utilities and fixtures.
//
// This package centralises the synthetic scenes and assertions used across
// the keyframe, registration and scan matching tests.
package testutil

import (
	"math"
	"testing"

	"github.com/banshee-data/scanmatch/internal/lidar/cloud"
	"github.com/banshee-data/scanmatch/internal/lidar/pose"
	"gonum.org/v1/gonum/spatial/r3"
)

// RoomStep is the grid spacing of Room (meters).
const RoomStep = 0.2

// FloorZ is the floor height of Room in the sensor frame.
const FloorZ = -1.0

// Room returns a noise-free scan of a 10x10 m floor at FloorZ enclosed by
// four walls 0.5 m beyond it, as seen by a sensor at the origin. Wall
// columns start 0.3 m above the floor.
func Room() *cloud.Cloud {
	var pts []r3.Vec
	for x := -5.0; x <= 5.0+1e-9; x += RoomStep {
		for y := -5.0; y <= 5.0+1e-9; y += RoomStep {
			pts = append(pts, r3.Vec{X: x, Y: y, Z: FloorZ})
		}
	}
	for z := FloorZ + 0.3; z <= 1.4+1e-9; z += RoomStep {
		for s := -5.0; s <= 5.0+1e-9; s += RoomStep {
			pts = append(pts,
				r3.Vec{X: -5.5, Y: s, Z: z}, r3.Vec{X: 5.5, Y: s, Z: z},
				r3.Vec{X: s, Y: -5.5, Z: z}, r3.Vec{X: s, Y: 5.5, Z: z})
		}
	}
	return cloud.New(pts)
}

// RoomFloorPoints is the number of floor points in Room.
const RoomFloorPoints = 51 * 51

// RoomSeenFrom returns Room expressed in the frame of a sensor whose pose in
// the room frame is t, i.e. every point moved by t⁻¹.
func RoomSeenFrom(t pose.Transform) *cloud.Cloud {
	return cloud.Transform(Room(), t.Inverse())
}

// Deg converts degrees to radians.
func Deg(d float64) float64 { return d * math.Pi / 180 }

// AssertTransformNear fails the test if got differs from want by more than
// maxTranslation meters or maxAngle radians.
func AssertTransformNear(t *testing.T, want, got pose.Transform, maxTranslation, maxAngle float64) {
	t.Helper()
	dt, da := pose.Delta(want, got)
	if dt > maxTranslation || da > maxAngle {
		t.Errorf("transform off by %.6f m, %.4f deg (limits %.6f m, %.4f deg)\nwant %s\ngot  %s",
			dt, da*180/math.Pi, maxTranslation, maxAngle*180/math.Pi, want, got)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}
