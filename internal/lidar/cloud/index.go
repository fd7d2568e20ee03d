package cloud

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// indexedPoint is a kd-tree element that remembers its position in the
// source cloud.
type indexedPoint struct {
	p   r3.Vec
	idx int
}

func coord(p r3.Vec, d kdtree.Dim) float64 {
	switch d {
	case 0:
		return p.X
	case 1:
		return p.Y
	default:
		return p.Z
	}
}

// Compare satisfies kdtree.Comparable.
func (a indexedPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return coord(a.p, d) - coord(c.(indexedPoint).p, d)
}

// Dims satisfies kdtree.Comparable.
func (a indexedPoint) Dims() int { return 3 }

// Distance returns the squared Euclidean distance.
func (a indexedPoint) Distance(c kdtree.Comparable) float64 {
	return r3.Norm2(r3.Sub(a.p, c.(indexedPoint).p))
}

// indexedPoints is the kdtree.Interface collection.
type indexedPoints []indexedPoint

func (p indexedPoints) Index(i int) kdtree.Comparable { return p[i] }
func (p indexedPoints) Len() int                      { return len(p) }
func (p indexedPoints) Slice(start, end int) kdtree.Interface {
	return p[start:end]
}
func (p indexedPoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(plane{indexedPoints: p, Dim: d}, kdtree.MedianOfMedians(plane{indexedPoints: p, Dim: d}))
}

// plane sorts indexedPoints along one dimension for pivot selection.
type plane struct {
	kdtree.Dim
	indexedPoints
}

func (p plane) Less(i, j int) bool {
	return coord(p.indexedPoints[i].p, p.Dim) < coord(p.indexedPoints[j].p, p.Dim)
}
func (p plane) Swap(i, j int) {
	p.indexedPoints[i], p.indexedPoints[j] = p.indexedPoints[j], p.indexedPoints[i]
}
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.indexedPoints = p.indexedPoints[start:end]
	return p
}

// Index answers nearest-neighbour queries over a fixed set of points. It is
// immutable after NewIndex and safe for concurrent queries.
type Index struct {
	tree *kdtree.Tree
	n    int
}

// NewIndex builds a kd-tree over points. Query results refer to positions
// in points.
func NewIndex(points []r3.Vec) *Index {
	elems := make(indexedPoints, len(points))
	for i, p := range points {
		elems[i] = indexedPoint{p: p, idx: i}
	}
	if len(elems) == 0 {
		return &Index{}
	}
	return &Index{tree: kdtree.New(elems, false), n: len(elems)}
}

// Len returns the number of indexed points.
func (ix *Index) Len() int { return ix.n }

// Nearest returns the position of the point closest to q and the squared
// distance to it. An empty index returns -1 and +Inf.
func (ix *Index) Nearest(q r3.Vec) (int, float64) {
	if ix.tree == nil {
		return -1, math.Inf(1)
	}
	c, d2 := ix.tree.Nearest(indexedPoint{p: q})
	if c == nil {
		return -1, math.Inf(1)
	}
	return c.(indexedPoint).idx, d2
}

// Neighbors returns up to maxN positions of points within radius of q,
// nearest first. The query point itself is returned when it is indexed.
// maxN <= 0 removes the cap.
func (ix *Index) Neighbors(q r3.Vec, radius float64, maxN int) []int {
	if ix.tree == nil {
		return nil
	}
	r2 := radius * radius
	var keeper kdtree.Keeper
	if maxN > 0 {
		keeper = kdtree.NewNKeeper(maxN)
	} else {
		keeper = kdtree.NewDistKeeper(r2)
	}
	ix.tree.NearestSet(keeper, indexedPoint{p: q})

	var heap kdtree.Heap
	switch k := keeper.(type) {
	case *kdtree.NKeeper:
		heap = k.Heap
	case *kdtree.DistKeeper:
		heap = k.Heap
	}
	found := make([]kdtree.ComparableDist, 0, len(heap))
	for _, cd := range heap {
		if cd.Comparable == nil || cd.Dist > r2 {
			continue
		}
		found = append(found, cd)
	}
	sortByDist(found)
	out := make([]int, len(found))
	for i, cd := range found {
		out[i] = cd.Comparable.(indexedPoint).idx
	}
	return out
}

func sortByDist(cds []kdtree.ComparableDist) {
	// Insertion sort: neighbourhoods are small.
	for i := 1; i < len(cds); i++ {
		for j := i; j > 0 && cds[j].Dist < cds[j-1].Dist; j-- {
			cds[j], cds[j-1] = cds[j-1], cds[j]
		}
	}
}
