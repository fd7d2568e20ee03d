package cloud

import (
	"fmt"

	"github.com/banshee-data/scanmatch/internal/lidar"
	"gonum.org/v1/gonum/spatial/r3"
)

// filter keeps the points for which keep returns true.
func filter(c *Cloud, keep func(p r3.Vec) bool) *Cloud {
	withNormals := c.HasNormals()
	out := &Cloud{Points: make([]r3.Vec, 0, c.Len())}
	if withNormals {
		out.Normals = make([]r3.Vec, 0, c.Len())
	}
	for i, p := range c.Points {
		if !keep(p) {
			continue
		}
		out.Points = append(out.Points, p)
		if withNormals {
			out.Normals = append(out.Normals, c.Normals[i])
		}
	}
	return out
}

// FilterByRadius keeps points whose planar radius sqrt(x²+y²) lies strictly
// between minR and maxR. Near returns hit the robot chassis and far returns
// are unreliable. An inverted or negative band is a configuration error.
func FilterByRadius(c *Cloud, minR, maxR float64) (*Cloud, error) {
	if minR < 0 || minR >= maxR {
		return nil, fmt.Errorf("radius band (%g, %g): %w", minR, maxR, lidar.ErrInvalidConfig)
	}
	min2, max2 := minR*minR, maxR*maxR
	return filter(c, func(p r3.Vec) bool {
		r2 := p.X*p.X + p.Y*p.Y
		return r2 > min2 && r2 < max2
	}), nil
}

// FilterByMaxDistance keeps points closer than maxDist to the sensor origin.
func FilterByMaxDistance(c *Cloud, maxDist float64) *Cloud {
	max2 := maxDist * maxDist
	return filter(c, func(p r3.Vec) bool { return r3.Norm2(p) < max2 })
}

// FilterByMaxHeight keeps points with z below maxHeight.
func FilterByMaxHeight(c *Cloud, maxHeight float64) *Cloud {
	return filter(c, func(p r3.Vec) bool { return p.Z < maxHeight })
}

// FilterByHeightBand keeps points with floor <= z <= ceiling. Map
// accumulation uses it to trim ceilings and pits.
func FilterByHeightBand(c *Cloud, floor, ceiling float64) *Cloud {
	return filter(c, func(p r3.Vec) bool { return p.Z >= floor && p.Z <= ceiling })
}
