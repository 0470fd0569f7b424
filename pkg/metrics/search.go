package metrics

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// Searcher finds, for every point of from, the distance to the closest
// point of to. Implementations may trade exactness for speed.
type Searcher interface {
	Distances(from, to Points3D) []float64
}

// NewSearcher returns the searcher registered under name ("box" or "kdtree").
func NewSearcher(name string, radius float64) (Searcher, error) {
	switch name {
	case "", "box":
		return BoxSearch{InitialRadius: radius}, nil
	case "kdtree":
		return KDTreeSearch{}, nil
	}
	return nil, fmt.Errorf("unknown search method %q", name)
}

// BoxSearch looks for candidates inside an axis-aligned box around each
// query point, doubling the half-width until the box is not empty, and
// returns the closest candidate.
//
// This is a speed heuristic. When the true nearest point lies further than
// the final half-width, a farther candidate inside the box may be returned.
type BoxSearch struct {
	InitialRadius float64
}

// Distances implements Searcher.
func (s BoxSearch) Distances(from, to Points3D) []float64 {
	if len(to) == 0 {
		return nil
	}
	r0 := s.InitialRadius
	if r0 <= 0 {
		r0 = 5
	}

	sorted := make(Points3D, len(to))
	copy(sorted, to)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	out := make([]float64, len(from))
	for i, p := range from {
		for r := r0; ; r *= 2 {
			if d, ok := nearestInBox(sorted, p, r); ok {
				out[i] = d
				break
			}
		}
	}
	return out
}

// nearestInBox scans the points of sorted (ordered by X) within half-width r
// of p along every axis.
func nearestInBox(sorted Points3D, p Point3D, r float64) (float64, bool) {
	lo := sort.Search(len(sorted), func(i int) bool { return sorted[i].X >= p.X-r })
	best, found := math.Inf(1), false
	for _, q := range sorted[lo:] {
		if q.X > p.X+r {
			break
		}
		if math.Abs(q.Y-p.Y) > r || math.Abs(q.Z-p.Z) > r {
			continue
		}
		if d := p.Distance(q); d < best {
			best, found = d, true
		}
	}
	return math.Sqrt(best), found
}

// KDTreeSearch is an exact nearest neighbour search over a k-d tree.
type KDTreeSearch struct{}

// Distances implements Searcher.
func (KDTreeSearch) Distances(from, to Points3D) []float64 {
	if len(to) == 0 {
		return nil
	}
	pts := make(Points3D, len(to))
	copy(pts, to)
	tree := kdtree.New(pts, true)

	out := make([]float64, len(from))
	for i, p := range from {
		_, d := tree.Nearest(p)
		out[i] = math.Sqrt(d)
	}
	return out
}
