package cloud

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func bruteNearest(points []r3.Vec, q r3.Vec) (int, float64) {
	best, bestD := -1, math.Inf(1)
	for i, p := range points {
		if d := r3.Norm2(r3.Sub(p, q)); d < bestD {
			best, bestD = i, d
		}
	}
	return best, bestD
}

func TestIndex_NearestMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	c := randomCloud(rng, 2000, 5)
	ix := NewIndex(c.Points)
	require.Equal(t, 2000, ix.Len())

	for i := 0; i < 200; i++ {
		q := r3.Vec{X: rng.Float64()*12 - 6, Y: rng.Float64()*12 - 6, Z: rng.Float64()*12 - 6}
		wantIdx, wantD := bruteNearest(c.Points, q)
		gotIdx, gotD := ix.Nearest(q)
		assert.InDelta(t, wantD, gotD, 1e-12)
		assert.Equal(t, c.Points[wantIdx], c.Points[gotIdx])
	}
}

func TestIndex_NeighborsRadiusAndCap(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	c := randomCloud(rng, 3000, 2)
	ix := NewIndex(c.Points)

	q := c.Points[17]
	const radius = 0.4
	var want int
	for _, p := range c.Points {
		if r3.Norm2(r3.Sub(p, q)) <= radius*radius {
			want++
		}
	}

	all := ix.Neighbors(q, radius, 0)
	assert.Len(t, all, want)
	assert.Equal(t, 17, all[0], "query point comes first")

	capped := ix.Neighbors(q, radius, 5)
	require.Len(t, capped, 5)
	for i := 1; i < len(capped); i++ {
		di := r3.Norm2(r3.Sub(c.Points[capped[i]], q))
		dj := r3.Norm2(r3.Sub(c.Points[capped[i-1]], q))
		assert.GreaterOrEqual(t, di, dj)
	}
	for _, i := range capped {
		assert.LessOrEqual(t, r3.Norm(r3.Sub(c.Points[i], q)), radius)
	}
}

func TestIndex_Empty(t *testing.T) {
	ix := NewIndex(nil)
	idx, d := ix.Nearest(r3.Vec{})
	assert.Equal(t, -1, idx)
	assert.True(t, math.IsInf(d, 1))
	assert.Empty(t, ix.Neighbors(r3.Vec{}, 1, 3))
}
