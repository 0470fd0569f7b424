// Package postprocess turns raw per-voxel organ probabilities into an
// anatomically plausible binary mask.
//
// Each stage is a pure function from one volume to a new volume; the input is
// never modified. ForOrgan composes the stages in their fixed order:
//
//	threshold -> largest regions -> height prior -> axial contiguity -> z smoothing
package postprocess

import (
	"gonum.org/v1/gonum/floats"

	"hnautoseg/internal/models"
	"hnautoseg/pkg/contour"
	"hnautoseg/pkg/organ"
)

// Stage transforms a volume into a new volume.
type Stage func(*models.Volume) *models.Volume

// Pipeline is an ordered list of stages.
type Pipeline []Stage

// Run applies every stage in order and returns the final volume.
func (p Pipeline) Run(v *models.Volume) *models.Volume {
	out := v
	for _, s := range p {
		out = s(out)
	}
	return out
}

// Options carries the tunables that are not part of the organ table.
type Options struct {
	Tracer contour.Tracer

	// MinRegionPoints is the smallest boundary accepted by region selection
	MinRegionPoints int

	// VoxelwiseSmoothing switches z smoothing to per-voxel neighbour matching
	VoxelwiseSmoothing bool
}

// DefaultOptions returns the standard options.
func DefaultOptions() Options {
	return Options{Tracer: contour.SuzukiTracer{}, MinRegionPoints: 3}
}

// ForOrgan returns the postprocessing pipeline for one organ.
func ForOrgan(info organ.Info, opts Options) Pipeline {
	p := Pipeline{
		Threshold(info.Threshold),
		LargestRegions(opts.Tracer, info.Bilateral, opts.MinRegionPoints),
	}
	if info.MaxSlices > 0 {
		p = append(p, HeightPrior(info.MaxSlices))
	}
	p = append(p, AxialContiguity())
	if opts.VoxelwiseSmoothing {
		return append(p, ZSmoothVoxelwise())
	}
	return append(p, ZSmooth())
}

// Threshold binarizes v: values strictly above t become 1, everything else 0.
func Threshold(t float64) Stage {
	return func(v *models.Volume) *models.Volume {
		out := models.NewVolume(v.Width, v.Height, v.Depth)
		for i, x := range v.Data {
			if x > t {
				out.Data[i] = 1
			}
		}
		return out
	}
}

// LargestRegions keeps, on every slice, the region enclosed by the longest
// boundary (and the second longest when bilateral). Slices whose kept
// boundary has fewer than minPoints points become empty.
func LargestRegions(tracer contour.Tracer, bilateral bool, minPoints int) Stage {
	if tracer == nil {
		tracer = contour.SuzukiTracer{}
	}
	return func(v *models.Volume) *models.Volume {
		out := models.NewVolume(v.Width, v.Height, v.Depth)
		for z := 0; z < v.Depth; z++ {
			polys := tracer.Trace(v.SliceMask(z), v.Width, v.Height)
			primary, secondary := contour.Largest(polys, bilateral)
			buf := make([]uint8, v.SliceLen())
			for _, p := range []contour.Polygon{primary, secondary} {
				if len(p) < minPoints {
					continue
				}
				contour.FillPolygon(buf, v.Width, v.Height, p)
			}
			dst := out.Slice(z)
			for i, b := range buf {
				dst[i] = float64(b)
			}
		}
		return out
	}
}

// sliceSums returns the voxel total of every axial slice.
func sliceSums(v *models.Volume) []float64 {
	sums := make([]float64, v.Depth)
	for z := range sums {
		sums[z] = floats.Sum(v.Slice(z))
	}
	return sums
}

// HeightPrior keeps the window of maxSlices consecutive slices holding the
// most voxels and clears the rest. The earliest window wins ties. Volumes no
// deeper than the window are returned unchanged.
func HeightPrior(maxSlices int) Stage {
	return func(v *models.Volume) *models.Volume {
		out := v.Clone()
		if maxSlices <= 0 || v.Depth <= maxSlices {
			return out
		}
		sums := sliceSums(v)
		var window float64
		for z := 0; z < maxSlices; z++ {
			window += sums[z]
		}
		best, bestStart := window, 0
		for start := 1; start+maxSlices <= v.Depth; start++ {
			window += sums[start+maxSlices-1] - sums[start-1]
			if window > best {
				best, bestStart = window, start
			}
		}
		for z := 0; z < v.Depth; z++ {
			if z < bestStart || z >= bestStart+maxSlices {
				clearSlice(out, z)
			}
		}
		return out
	}
}

// AxialContiguity keeps only the run of consecutive nonempty slices with the
// largest voxel total. The earliest run wins ties.
func AxialContiguity() Stage {
	return func(v *models.Volume) *models.Volume {
		out := v.Clone()
		sums := sliceSums(v)

		bestStart, bestEnd, best := -1, -1, 0.0
		for z := 0; z < v.Depth; {
			if sums[z] == 0 {
				z++
				continue
			}
			start, total := z, 0.0
			for z < v.Depth && sums[z] != 0 {
				total += sums[z]
				z++
			}
			if bestStart < 0 || total > best {
				bestStart, bestEnd, best = start, z, total
			}
		}
		if bestStart < 0 {
			return out
		}
		for z := 0; z < v.Depth; z++ {
			if z < bestStart || z >= bestEnd {
				clearSlice(out, z)
			}
		}
		return out
	}
}

// ZSmooth replaces an interior slice by the mean of its neighbours when the
// two neighbours are identical. Comparisons use the unmodified input.
func ZSmooth() Stage {
	return func(v *models.Volume) *models.Volume {
		out := v.Clone()
		for z := 1; z < v.Depth-1; z++ {
			below, above := v.Slice(z-1), v.Slice(z+1)
			if !floats.Equal(below, above) {
				continue
			}
			dst := out.Slice(z)
			for i := range dst {
				dst[i] = (below[i] + above[i]) / 2
			}
		}
		return out
	}
}

// ZSmoothVoxelwise is the per-voxel variant of ZSmooth: every voxel of an
// interior slice whose two axial neighbours agree takes their value.
func ZSmoothVoxelwise() Stage {
	return func(v *models.Volume) *models.Volume {
		out := v.Clone()
		for z := 1; z < v.Depth-1; z++ {
			below, above, dst := v.Slice(z-1), v.Slice(z+1), out.Slice(z)
			for i := range dst {
				if below[i] == above[i] {
					dst[i] = below[i]
				}
			}
		}
		return out
	}
}

func clearSlice(v *models.Volume, z int) {
	s := v.Slice(z)
	for i := range s {
		s[i] = 0
	}
}
