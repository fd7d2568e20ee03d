// Package cloud holds the point-cloud container, its geometric filters, the
// voxel grid used for decimation and the kd-tree used for neighbour queries.
//
// Filters never modify their input; they return a new Cloud. The only
// in-place operation is TransformInPlace.
package cloud

import (
	"fmt"

	"github.com/banshee-data/scanmatch/internal/lidar"
	"github.com/banshee-data/scanmatch/internal/lidar/pose"
	"gonum.org/v1/gonum/spatial/r3"
)

// Cloud is an ordered set of points with optional index-aligned normals.
// Normals is either empty or the same length as Points. A zero normal marks
// a point whose normal could not be estimated.
type Cloud struct {
	Points  []r3.Vec
	Normals []r3.Vec
}

// New returns a cloud over the given points, without normals.
func New(points []r3.Vec) *Cloud {
	return &Cloud{Points: points}
}

// Len returns the number of points. A nil cloud has none.
func (c *Cloud) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Points)
}

// HasNormals reports whether normals have been computed.
func (c *Cloud) HasNormals() bool {
	return c != nil && len(c.Normals) > 0 && len(c.Normals) == len(c.Points)
}

// HasNormal reports whether point i carries a defined (non-zero) normal.
func (c *Cloud) HasNormal(i int) bool {
	if !c.HasNormals() {
		return false
	}
	n := c.Normals[i]
	return n.X != 0 || n.Y != 0 || n.Z != 0
}

// Validate checks the normals length invariant.
func (c *Cloud) Validate() error {
	if c == nil {
		return fmt.Errorf("nil cloud: %w", lidar.ErrInvalidConfig)
	}
	if len(c.Normals) != 0 && len(c.Normals) != len(c.Points) {
		return fmt.Errorf("cloud has %d normals for %d points: %w", len(c.Normals), len(c.Points), lidar.ErrInvalidConfig)
	}
	return nil
}

// Clone returns a deep copy.
func (c *Cloud) Clone() *Cloud {
	if c == nil {
		return &Cloud{}
	}
	out := &Cloud{Points: append([]r3.Vec(nil), c.Points...)}
	if len(c.Normals) > 0 {
		out.Normals = append([]r3.Vec(nil), c.Normals...)
	}
	return out
}

// Select returns the points at idx, or every other point when invert is set.
// Normals follow their points.
func Select(c *Cloud, idx []int, invert bool) *Cloud {
	withNormals := c.HasNormals()
	if !invert {
		out := &Cloud{Points: make([]r3.Vec, 0, len(idx))}
		if withNormals {
			out.Normals = make([]r3.Vec, 0, len(idx))
		}
		for _, i := range idx {
			out.Points = append(out.Points, c.Points[i])
			if withNormals {
				out.Normals = append(out.Normals, c.Normals[i])
			}
		}
		return out
	}

	skip := make([]bool, c.Len())
	for _, i := range idx {
		skip[i] = true
	}
	out := &Cloud{Points: make([]r3.Vec, 0, c.Len()-len(idx))}
	if withNormals {
		out.Normals = make([]r3.Vec, 0, c.Len()-len(idx))
	}
	for i, p := range c.Points {
		if skip[i] {
			continue
		}
		out.Points = append(out.Points, p)
		if withNormals {
			out.Normals = append(out.Normals, c.Normals[i])
		}
	}
	return out
}

// Transform returns a copy of c with T applied to every point and the
// rotation of T applied to every normal.
func Transform(c *Cloud, t pose.Transform) *Cloud {
	out := c.Clone()
	out.TransformInPlace(t)
	return out
}

// TransformInPlace applies T to c.
func (c *Cloud) TransformInPlace(t pose.Transform) {
	for i, p := range c.Points {
		c.Points[i] = t.Apply(p)
	}
	for i, n := range c.Normals {
		c.Normals[i] = t.ApplyRotation(n)
	}
}

// Centroid returns the mean point. An empty cloud has a zero centroid.
func (c *Cloud) Centroid() r3.Vec {
	var sum r3.Vec
	if c.Len() == 0 {
		return sum
	}
	for _, p := range c.Points {
		sum = r3.Add(sum, p)
	}
	return r3.Scale(1/float64(len(c.Points)), sum)
}
