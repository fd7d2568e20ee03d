package cloud

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// voxelKey identifies one cube of the grid.
type voxelKey struct {
	X, Y, Z int64
}

// voxelAccumulator sums the points that fall in one voxel.
type voxelAccumulator struct {
	sum    r3.Vec
	normal r3.Vec
	count  int
}

func keyFor(p r3.Vec, size float64) voxelKey {
	return voxelKey{
		X: int64(math.Floor(p.X / size)),
		Y: int64(math.Floor(p.Y / size)),
		Z: int64(math.Floor(p.Z / size)),
	}
}

// VoxelDownsample replaces the points of each occupied cube of edge size
// with their centroid. A size <= 0 disables decimation and returns a copy.
// Voxels are emitted in order of their first point; normals, when present,
// are averaged and renormalised.
func VoxelDownsample(c *Cloud, size float64) *Cloud {
	if size <= 0 || c.Len() == 0 {
		return c.Clone()
	}

	withNormals := c.HasNormals()
	slots := make(map[voxelKey]int, c.Len()/4+1)
	acc := make([]voxelAccumulator, 0, c.Len()/4+1)
	for i, p := range c.Points {
		k := keyFor(p, size)
		slot, ok := slots[k]
		if !ok {
			slot = len(acc)
			slots[k] = slot
			acc = append(acc, voxelAccumulator{})
		}
		a := &acc[slot]
		a.sum = r3.Add(a.sum, p)
		if withNormals {
			a.normal = r3.Add(a.normal, c.Normals[i])
		}
		a.count++
	}

	out := &Cloud{Points: make([]r3.Vec, len(acc))}
	if withNormals {
		out.Normals = make([]r3.Vec, len(acc))
	}
	for i, a := range acc {
		out.Points[i] = r3.Scale(1/float64(a.count), a.sum)
		if withNormals && r3.Norm(a.normal) > 0 {
			out.Normals[i] = r3.Unit(a.normal)
		}
	}
	return out
}
