package normals

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/banshee-data/scanmatch/internal/lidar"
	"github.com/banshee-data/scanmatch/internal/lidar/cloud"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// grid returns points on a regular grid spanning [-half, half]² mapped
// through place.
func grid(half, step float64, place func(u, v float64) r3.Vec) *cloud.Cloud {
	var pts []r3.Vec
	for u := -half; u <= half+1e-9; u += step {
		for v := -half; v <= half+1e-9; v += step {
			pts = append(pts, place(u, v))
		}
	}
	return cloud.New(pts)
}

func TestEstimate_FloorPointsUpTowardSensor(t *testing.T) {
	floor := grid(2, 0.1, func(u, v float64) r3.Vec { return r3.Vec{X: u, Y: v, Z: -1} })
	out, stats, err := Estimate(floor, Params{Radius: 0.25, MaxNeighbors: 20})
	require.NoError(t, err)
	require.True(t, out.HasNormals())
	assert.Zero(t, stats.Undefined)
	assert.False(t, floor.HasNormals(), "input must not gain normals")

	for i, n := range out.Normals {
		assert.InDelta(t, 1, n.Z, 1e-9, "point %d normal %v", i, n)
		assert.InDelta(t, 1, r3.Norm(n), 1e-9)
	}
}

func TestEstimate_WallFacesOrigin(t *testing.T) {
	wall := grid(1, 0.1, func(u, v float64) r3.Vec { return r3.Vec{X: 3, Y: u, Z: v} })
	out, _, err := Estimate(wall, Params{Radius: 0.3, MaxNeighbors: 30})
	require.NoError(t, err)
	for _, n := range out.Normals {
		assert.InDelta(t, -1, n.X, 1e-9)
	}
}

func TestEstimate_CustomOrigin(t *testing.T) {
	floor := grid(1, 0.1, func(u, v float64) r3.Vec { return r3.Vec{X: u, Y: v} })
	out, _, err := Estimate(floor, Params{Radius: 0.25, MaxNeighbors: 20, Origin: r3.Vec{Z: -5}})
	require.NoError(t, err)
	for _, n := range out.Normals {
		assert.InDelta(t, -1, n.Z, 1e-9)
	}
}

func TestEstimate_NoisyPlane(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	floor := grid(2, 0.1, func(u, v float64) r3.Vec {
		return r3.Vec{X: u, Y: v, Z: -0.7 + rng.NormFloat64()*0.002}
	})
	out, _, err := Estimate(floor, Params{Radius: 0.3, MaxNeighbors: 30})
	require.NoError(t, err)
	for _, n := range out.Normals {
		assert.Less(t, math.Acos(n.Z), 5*math.Pi/180)
	}
}

func TestEstimate_SparsePointsAreUndefined(t *testing.T) {
	c := cloud.New([]r3.Vec{
		{X: 0, Y: 0, Z: -1}, {X: 0.1, Y: 0, Z: -1}, {X: 0, Y: 0.1, Z: -1}, {X: 0.1, Y: 0.1, Z: -1},
		{X: 10, Y: 10, Z: 10},
	})
	out, stats, err := Estimate(c, Params{Radius: 0.5, MaxNeighbors: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Undefined)
	assert.False(t, out.HasNormal(4))
	assert.True(t, out.HasNormal(0))
	assert.InDelta(t, 0.2, stats.UndefinedFraction(), 1e-12)
}

func TestEstimate_TooManyUndefined(t *testing.T) {
	c := cloud.New([]r3.Vec{{X: 0}, {X: 5}, {X: 10}, {X: 15}})
	out, stats, err := Estimate(c, Params{Radius: 1, MaxNeighbors: 10, MaxUndefinedFraction: 0.5})
	assert.True(t, errors.Is(err, lidar.ErrDegenerateGeometry))
	require.NotNil(t, out)
	assert.Equal(t, 4, stats.Undefined)
}

func TestEstimate_InvalidParams(t *testing.T) {
	c := cloud.New([]r3.Vec{{}})
	_, _, err := Estimate(c, Params{Radius: 0})
	assert.True(t, errors.Is(err, lidar.ErrInvalidConfig))
	_, _, err = Estimate(c, Params{Radius: 1, MaxNeighbors: 2})
	assert.True(t, errors.Is(err, lidar.ErrInvalidConfig))
}

func TestEstimate_Empty(t *testing.T) {
	out, stats, err := Estimate(cloud.New(nil), Params{Radius: 1})
	require.NoError(t, err)
	assert.Zero(t, out.Len())
	assert.Zero(t, stats.Points)
}
