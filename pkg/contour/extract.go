package contour

import (
	"fmt"

	"hnautoseg/internal/models"
)

// Extractor converts cleaned binary volumes into contour point lists in
// patient millimetres.
type Extractor struct {
	Tracer Tracer

	// ImageSize is the edge length of the normalized pixel grid
	ImageSize int

	// PixelSize is the normalized pixel spacing in mm
	PixelSize float64

	// MinSliceVoxels skips slices whose mask sum is below it
	MinSliceVoxels float64

	// MinPoints rejects polygons with fewer vertices
	MinPoints int
}

// NewExtractor returns an extractor with the standard limits.
func NewExtractor(tracer Tracer, imageSize int, pixelSize float64) *Extractor {
	if tracer == nil {
		tracer = SuzukiTracer{}
	}
	return &Extractor{
		Tracer:         tracer,
		ImageSize:      imageSize,
		PixelSize:      pixelSize,
		MinSliceVoxels: 4,
		MinPoints:      4,
	}
}

// Extract returns one contour per kept polygon, ordered by slice as given in
// heights (ascending). Each slice yields the largest polygon and, for
// bilateral organs, the second largest.
func (e *Extractor) Extract(mask *models.Volume, heights []float64, bilateral bool) ([]models.Contour, error) {
	if len(heights) != mask.Depth {
		return nil, fmt.Errorf("mask depth %d does not match %d heights", mask.Depth, len(heights))
	}
	var out []models.Contour
	for z := 0; z < mask.Depth; z++ {
		if mask.SliceSum(z) < e.MinSliceVoxels {
			continue
		}
		polys := e.Tracer.Trace(mask.SliceMask(z), mask.Width, mask.Height)
		primary, secondary := Largest(polys, bilateral)
		for _, p := range []Polygon{primary, secondary} {
			if len(p) < e.MinPoints {
				continue
			}
			out = append(out, e.toPatient(p, heights[z]))
		}
	}
	return out, nil
}

// toPatient shifts pixel coordinates back to the image centre origin and
// interleaves the slice height.
func (e *Extractor) toPatient(p Polygon, z float64) models.Contour {
	half := float64(e.ImageSize) / 2
	pts := make([]float64, 0, len(p)*3)
	for _, q := range p {
		pts = append(pts,
			(float64(q.X)-half)*e.PixelSize,
			(float64(q.Y)-half)*e.PixelSize,
			z)
	}
	return models.Contour{Points: pts}
}

// ToPixel maps a patient-space point back onto the normalized grid.
func (e *Extractor) ToPixel(x, y float64) (col, row float64) {
	half := float64(e.ImageSize) / 2
	return x/e.PixelSize + half, y/e.PixelSize + half
}
