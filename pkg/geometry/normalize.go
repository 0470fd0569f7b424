// Package geometry loads CT series and places every slice on a common
// square pixel grid ordered by ascending table height.
package geometry

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"

	"golang.org/x/image/draw"

	"hnautoseg/internal/models"
)

// AirHU is the value used to pad slices smaller than the target grid.
const AirHU = -1000

// huOffset shifts Hounsfield units into the unsigned 16-bit range used
// while resampling.
const huOffset = 32768

// Normalizer resamples, crops and pads CT slices to a fixed grid.
type Normalizer struct {
	// ImageSize is the edge length of the output grid in pixels
	ImageSize int

	// PixelSize is the output pixel spacing in mm
	PixelSize float64

	// HeightPrecision is the grid slice heights are rounded to in mm
	HeightPrecision float64
}

// NewNormalizer returns a normalizer for the given grid.
func NewNormalizer(imageSize int, pixelSize, heightPrecision float64) *Normalizer {
	return &Normalizer{ImageSize: imageSize, PixelSize: pixelSize, HeightPrecision: heightPrecision}
}

// Normalized is a CT volume on the common grid.
type Normalized struct {
	Volume *models.Volume

	// Heights[i] is the rounded table height of Volume slice i, ascending
	Heights []float64

	// Sources[i] is the image that produced slice i
	Sources []*models.CTSlice
}

// Normalize converts the CT slices into a volume. Slices of other modalities
// are skipped. When two slices round to the same height the later one in
// input order is kept.
func (n *Normalizer) Normalize(slices []*models.CTSlice) (*Normalized, error) {
	type entry struct {
		key    models.HeightKey
		pixels []float64
		src    *models.CTSlice
	}
	byKey := make(map[models.HeightKey]entry)
	for _, s := range slices {
		if !s.IsCT() {
			continue
		}
		px, err := n.NormalizeSlice(s)
		if err != nil {
			return nil, &SliceError{File: s.File, Err: err}
		}
		k := models.KeyFor(s.SliceLocation, n.HeightPrecision)
		byKey[k] = entry{key: k, pixels: px, src: s}
	}
	if len(byKey) == 0 {
		return nil, ErrNoSlices
	}

	entries := make([]entry, 0, len(byKey))
	for _, e := range byKey {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	out := &Normalized{
		Volume:  models.NewVolume(n.ImageSize, n.ImageSize, len(entries)),
		Heights: make([]float64, len(entries)),
		Sources: make([]*models.CTSlice, len(entries)),
	}
	for z, e := range entries {
		copy(out.Volume.Slice(z), e.pixels)
		out.Heights[z] = e.key.Height(n.HeightPrecision)
		out.Sources[z] = e.src
	}
	return out, nil
}

// NormalizeSlice converts one CT slice to HU on the target grid.
func (n *Normalizer) NormalizeSlice(s *models.CTSlice) ([]float64, error) {
	if s.Rows != s.Columns {
		return nil, fmt.Errorf("%w: image is %dx%d, not square", ErrInvalidGeometry, s.Rows, s.Columns)
	}
	if s.Rows == 0 || len(s.Pixels) != s.Rows*s.Columns {
		return nil, fmt.Errorf("%w: %d pixels for a %dx%d image", ErrInvalidGeometry, len(s.Pixels), s.Rows, s.Columns)
	}

	hu := s.HU()
	size := s.Rows
	scale := s.PixelSpacing[0] / n.PixelSize
	if newSize := int(math.Round(float64(size) * scale)); newSize != size {
		if newSize < 1 {
			return nil, fmt.Errorf("%w: pixel spacing %.3f resamples to nothing", ErrInvalidGeometry, s.PixelSpacing[0])
		}
		hu = Resample(hu, size, newSize)
		size = newSize
	}

	switch {
	case size > n.ImageSize:
		return CenterCrop(hu, size, n.ImageSize), nil
	case size < n.ImageSize:
		return PadCenter(hu, size, n.ImageSize, AirHU), nil
	}
	return hu, nil
}

// Resample scales a square HU image from size to newSize pixels per edge
// with bilinear interpolation.
func Resample(hu []float64, size, newSize int) []float64 {
	src := image.NewGray16(image.Rect(0, 0, size, size))
	for i, v := range hu {
		src.SetGray16(i%size, i/size, color.Gray16{Y: toGray16(v)})
	}
	dst := image.NewGray16(image.Rect(0, 0, newSize, newSize))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	out := make([]float64, newSize*newSize)
	for y := 0; y < newSize; y++ {
		for x := 0; x < newSize; x++ {
			out[y*newSize+x] = float64(dst.Gray16At(x, y).Y) - huOffset
		}
	}
	return out
}

func toGray16(v float64) uint16 {
	return uint16(math.Max(0, math.Min(65535, math.Round(v+huOffset))))
}

// centerOffset is where a small edge starts inside a big one. It equals
// round((big-small)/2) for even big and is shared by crop and pad so the two
// are exact inverses.
func centerOffset(big, small int) int {
	return big/2 - small/2
}

// CenterCrop cuts the central size x size window out of a square image.
func CenterCrop(img []float64, from, size int) []float64 {
	off := centerOffset(from, size)
	out := make([]float64, size*size)
	for y := 0; y < size; y++ {
		copy(out[y*size:(y+1)*size], img[(y+off)*from+off:(y+off)*from+off+size])
	}
	return out
}

// PadCenter places a square image in the middle of a size x size canvas
// filled with fill.
func PadCenter(img []float64, from, size int, fill float64) []float64 {
	off := centerOffset(size, from)
	out := make([]float64, size*size)
	for i := range out {
		out[i] = fill
	}
	for y := 0; y < from; y++ {
		copy(out[(y+off)*size+off:(y+off)*size+off+from], img[y*from:(y+1)*from])
	}
	return out
}

// RoundHeight snaps a table height to the given precision.
func RoundHeight(h, precision float64) float64 {
	return models.KeyFor(h, precision).Height(precision)
}

// ApplyWindowLevel clamps v to the window centred on level. With normalize
// set the result is rescaled to [0,1]. The input is not modified.
func ApplyWindowLevel(v *models.Volume, width, level float64, normalize bool) *models.Volume {
	lo, hi := level-width/2, level+width/2
	out := v.Clone()
	for i, x := range out.Data {
		x = math.Max(lo, math.Min(hi, x))
		if normalize {
			x = (x - lo) / (hi - lo)
		}
		out.Data[i] = x
	}
	return out
}
