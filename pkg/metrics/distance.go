package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"hnautoseg/internal/models"
	"hnautoseg/pkg/contour"
)

// NoSurfaceDistance is returned by the distance metrics when either volume
// has no surface to compare.
const NoSurfaceDistance = 999.0

// DistanceSets extracts both surfaces and returns the nearest-surface
// distances from a to b and from b to a, in pixel units.
func DistanceSets(a, b *models.Volume, zRatio float64, bilateral bool, tracer contour.Tracer, searcher Searcher) (ab, ba []float64) {
	if searcher == nil {
		searcher = BoxSearch{InitialRadius: 5}
	}
	sa := SurfacePoints(a, zRatio, bilateral, tracer)
	sb := SurfacePoints(b, zRatio, bilateral, tracer)
	if len(sa) == 0 || len(sb) == 0 {
		return nil, nil
	}
	return searcher.Distances(sa, sb), searcher.Distances(sb, sa)
}

// MeanSurfaceDistance averages both distance lists together and scales the
// result to mm.
func MeanSurfaceDistance(ab, ba []float64, pixelSize float64) float64 {
	if len(ab) == 0 || len(ba) == 0 {
		return NoSurfaceDistance
	}
	all := make([]float64, 0, len(ab)+len(ba))
	all = append(append(all, ab...), ba...)
	return stat.Mean(all, nil) * pixelSize
}

// HausdorffPercentile returns the p-th percentile of the combined distance
// lists in mm. The element at index int(n*p/100) of the sorted list is used;
// p = 100 yields the maximum.
func HausdorffPercentile(ab, ba []float64, pixelSize, p float64) float64 {
	if len(ab) == 0 || len(ba) == 0 {
		return NoSurfaceDistance
	}
	all := make([]float64, 0, len(ab)+len(ba))
	all = append(append(all, ab...), ba...)
	sort.Float64s(all)

	idx := int(float64(len(all)) * p / 100)
	if idx >= len(all) {
		idx = len(all) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return all[idx] * pixelSize
}

// Options configures Evaluate.
type Options struct {
	// PixelSize is the in-plane spacing in mm
	PixelSize float64

	// SliceThickness is the axial spacing in mm
	SliceThickness float64

	// Percentile for the Hausdorff distance, 95 by default
	Percentile float64

	Bilateral bool
	Tracer    contour.Tracer
	Searcher  Searcher
}

// DefaultOptions returns 1 mm isotropic spacing and the 95th percentile.
func DefaultOptions() Options {
	return Options{PixelSize: 1, SliceThickness: 1, Percentile: 95}
}

// Result holds every metric for one pair of volumes.
type Result struct {
	Dice        float64
	Sensitivity float64
	Specificity float64
	MSD         float64
	HD          float64

	// Percentile the HD was taken at
	Percentile float64
}

// Evaluate compares pred against truth.
func Evaluate(truth, pred *models.Volume, opts Options) (Result, error) {
	c, err := count(truth, pred)
	if err != nil {
		return Result{}, err
	}
	if opts.PixelSize <= 0 {
		opts.PixelSize = 1
	}
	if opts.SliceThickness <= 0 {
		opts.SliceThickness = opts.PixelSize
	}
	if opts.Percentile <= 0 || math.IsNaN(opts.Percentile) {
		opts.Percentile = 95
	}

	ab, ba := DistanceSets(truth, pred, opts.SliceThickness/opts.PixelSize, opts.Bilateral, opts.Tracer, opts.Searcher)
	return Result{
		Dice:        c.dice(),
		Sensitivity: c.sensitivity(),
		Specificity: c.specificity(),
		MSD:         MeanSurfaceDistance(ab, ba, opts.PixelSize),
		HD:          HausdorffPercentile(ab, ba, opts.PixelSize, opts.Percentile),
		Percentile:  opts.Percentile,
	}, nil
}
