package metrics

import (
	"gonum.org/v1/gonum/spatial/kdtree"

	"hnautoseg/internal/models"
	"hnautoseg/pkg/contour"
)

// Point3D is a surface point in pixel units; Z is the slice index scaled by
// the slice thickness to pixel size ratio.
type Point3D struct {
	X, Y, Z float64
}

// coord returns the coordinate along axis d: 0 is column, 1 row, 2 height.
func (p Point3D) coord(d kdtree.Dim) float64 {
	switch d {
	case 0:
		return p.X
	case 1:
		return p.Y
	case 2:
		return p.Z
	}
	panic("metrics: surface points have three axes")
}

// Compare orders two surface points along one axis for tree construction.
func (p Point3D) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.coord(d) - c.(Point3D).coord(d)
}

func (p Point3D) Dims() int { return 3 }

// Distance is squared, as kdtree expects; searchers take the root.
func (p Point3D) Distance(c kdtree.Comparable) float64 {
	q := c.(Point3D)
	dx, dy, dz := p.X-q.X, p.Y-q.Y, p.Z-q.Z
	return dx*dx + dy*dy + dz*dz
}

// Points3D is one extracted surface, indexable by KDTreeSearch.
type Points3D []Point3D

func (p Points3D) Index(i int) kdtree.Comparable         { return p[i] }
func (p Points3D) Len() int                              { return len(p) }
func (p Points3D) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot splits the surface at a sampled median along axis d.
func (p Points3D) Pivot(d kdtree.Dim) int {
	axis := surfaceAxis{pts: p, dim: d}
	return kdtree.Partition(axis, kdtree.MedianOfRandoms(axis, 100))
}

// surfaceAxis sorts surface points along a single axis while the tree is
// partitioned.
type surfaceAxis struct {
	pts Points3D
	dim kdtree.Dim
}

func (a surfaceAxis) Len() int { return len(a.pts) }

func (a surfaceAxis) Less(i, j int) bool {
	return a.pts[i].coord(a.dim) < a.pts[j].coord(a.dim)
}

func (a surfaceAxis) Swap(i, j int) { a.pts[i], a.pts[j] = a.pts[j], a.pts[i] }

func (a surfaceAxis) Slice(start, end int) kdtree.SortSlicer {
	return surfaceAxis{pts: a.pts[start:end], dim: a.dim}
}

// SurfacePoints collects the boundary points of every slice of v: the
// largest boundary and, when bilateral, the second largest. Slice z is
// placed at z*zRatio.
func SurfacePoints(v *models.Volume, zRatio float64, bilateral bool, tracer contour.Tracer) Points3D {
	if tracer == nil {
		tracer = contour.SuzukiTracer{}
	}
	var pts Points3D
	for z := 0; z < v.Depth; z++ {
		if v.SliceSum(z) == 0 {
			continue
		}
		primary, secondary := contour.Largest(tracer.Trace(v.SliceMask(z), v.Width, v.Height), bilateral)
		for _, poly := range []contour.Polygon{primary, secondary} {
			for _, q := range poly {
				pts = append(pts, Point3D{X: float64(q.X), Y: float64(q.Y), Z: float64(z) * zRatio})
			}
		}
	}
	return pts
}
