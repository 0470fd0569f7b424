// Package visualization renders CT slices with contoured organs drawn on top,
// for visual checks of a generated structure set.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	"hnautoseg/internal/models"
	"hnautoseg/pkg/organ"
)

// Layer is one organ mask drawn over the CT.
type Layer struct {
	Name  string
	Mask  *models.Volume
	Color [3]int
}

// Viewer renders axial slices of a CT volume in Hounsfield units.
type Viewer struct {
	// ct holds the normalized volume in HU
	ct *models.Volume

	// Alpha is the opacity of mask fill, 0 disables the fill
	Alpha float64

	// Outline is the radius in pixels of the contour drawn around masks
	Outline float64

	// Scale enlarges saved previews; values below 2 keep the native size
	Scale int
}

// NewViewer creates a viewer over ct.
func NewViewer(ct *models.Volume) *Viewer {
	return &Viewer{ct: ct, Alpha: 0.35, Outline: 1, Scale: 2}
}

// RenderSlice maps slice z through the display window to 8 bit grey.
func (v *Viewer) RenderSlice(z int, w organ.Window) (*image.Gray, error) {
	if z < 0 || z >= v.ct.Depth {
		return nil, fmt.Errorf("slice %d outside volume of depth %d", z, v.ct.Depth)
	}
	lo := w.Level - w.Width/2
	img := image.NewGray(image.Rect(0, 0, v.ct.Width, v.ct.Height))
	for i, hu := range v.ct.Slice(z) {
		g := (hu - lo) / w.Width * 255
		img.Pix[i] = uint8(math.Round(math.Max(0, math.Min(255, g))))
	}
	return img, nil
}

// Overlay draws mask (width x height, nonzero = inside) over base: inside
// pixels are blended toward c by alpha and a solid outline of the given
// radius is drawn just outside the mask.
func Overlay(base image.Image, mask []uint8, c [3]int, alpha, outline float64) *image.NRGBA {
	b := base.Bounds()
	out := imaging.Clone(base)
	tint := colorful.Color{R: float64(c[0]) / 255, G: float64(c[1]) / 255, B: float64(c[2]) / 255}
	solid := color.NRGBA{R: uint8(c[0]), G: uint8(c[1]), B: uint8(c[2]), A: 255}

	maskImg := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for i, m := range mask {
		if m != 0 {
			maskImg.Pix[i] = 255
		}
	}
	var ring *image.RGBA
	if outline > 0 {
		ring = effect.Dilate(maskImg, outline)
	}

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			i := y*b.Dx() + x
			switch {
			case mask[i] != 0 && alpha > 0:
				px, _ := colorful.MakeColor(out.NRGBAAt(x, y))
				r, g, bl := px.BlendRgb(tint, alpha).Clamped().RGB255()
				out.SetNRGBA(x, y, color.NRGBA{R: r, G: g, B: bl, A: 255})
			case mask[i] == 0 && ring != nil && ring.RGBAAt(x, y).R > 0:
				out.SetNRGBA(x, y, solid)
			}
		}
	}
	return out
}

// RenderOverlay renders slice z with every layer drawn on top.
func (v *Viewer) RenderOverlay(z int, w organ.Window, layers []Layer) (*image.NRGBA, error) {
	gray, err := v.RenderSlice(z, w)
	if err != nil {
		return nil, err
	}
	out := imaging.Clone(gray)
	for _, l := range layers {
		if !l.Mask.SameShape(v.ct) {
			return nil, fmt.Errorf("layer %s does not match the CT volume", l.Name)
		}
		out = Overlay(out, l.Mask.SliceMask(z), l.Color, v.Alpha, v.Outline)
	}
	return out, nil
}

// SavePNG writes img to filename, creating parent directories.
func SavePNG(img image.Image, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	return imaging.Save(img, filename)
}

// SavePreviewSequence writes one PNG per slice on which any layer has
// content and returns the written paths in slice order.
func (v *Viewer) SavePreviewSequence(outputDir string, w organ.Window, layers []Layer) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}

	var paths []string
	for z := 0; z < v.ct.Depth; z++ {
		empty := true
		for _, l := range layers {
			if l.Mask.SliceSum(z) > 0 {
				empty = false
				break
			}
		}
		if empty {
			continue
		}

		img, err := v.RenderOverlay(z, w, layers)
		if err != nil {
			return paths, err
		}
		var out image.Image = img
		if v.Scale > 1 {
			out = imaging.Resize(img, img.Bounds().Dx()*v.Scale, 0, imaging.NearestNeighbor)
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%03d.png", z))
		if err := SavePNG(out, filename); err != nil {
			return paths, err
		}
		paths = append(paths, filename)
	}
	return paths, nil
}
