package visualization

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hnautoseg/internal/models"
	"hnautoseg/pkg/organ"
)

func ctVolume(w, h, d int, hu float64) *models.Volume {
	v := models.NewVolume(w, h, d)
	for i := range v.Data {
		v.Data[i] = hu
	}
	return v
}

func TestRenderSliceWindow(t *testing.T) {
	ct := ctVolume(4, 4, 2, 40)
	ct.Set(0, 0, 0, -1000)
	ct.Set(0, 0, 1, 3000)
	ct.Set(0, 0, 2, -160)

	img, err := NewViewer(ct).RenderSlice(0, organ.WindowTissue)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), img.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(255), img.GrayAt(1, 0).Y)
	assert.Equal(t, uint8(0), img.GrayAt(2, 0).Y)
	assert.Equal(t, uint8(128), img.GrayAt(3, 3).Y)

	_, err = NewViewer(ct).RenderSlice(2, organ.WindowTissue)
	assert.Error(t, err)
}

func TestOverlayFillAndOutline(t *testing.T) {
	base := image.NewGray(image.Rect(0, 0, 8, 8))
	mask := make([]uint8, 64)
	for y := 3; y < 5; y++ {
		for x := 3; x < 5; x++ {
			mask[y*8+x] = 1
		}
	}

	out := Overlay(base, mask, [3]int{255, 0, 0}, 0.5, 1)

	inside := out.NRGBAAt(3, 3)
	assert.InDelta(t, 128, int(inside.R), 1)
	assert.Equal(t, uint8(0), inside.G)

	assert.Equal(t, color.NRGBA{R: 255, A: 255}, out.NRGBAAt(2, 3))
	assert.Equal(t, color.NRGBA{A: 255}, out.NRGBAAt(0, 7))
}

func TestSavePreviewSequence(t *testing.T) {
	ct := ctVolume(6, 6, 4, 0)
	mask := models.NewVolume(6, 6, 4)
	mask.Set(1, 2, 2, 1)
	mask.Set(3, 3, 3, 1)

	v := NewViewer(ct)
	dir := filepath.Join(t.TempDir(), "preview")
	paths, err := v.SavePreviewSequence(dir, organ.WindowTissue, []Layer{{Name: "Brain", Mask: mask, Color: [3]int{0, 0, 198}}})
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "slice_001.png"),
		filepath.Join(dir, "slice_003.png"),
	}, paths)

	img, err := imaging.Open(paths[0])
	require.NoError(t, err)
	assert.Equal(t, 12, img.Bounds().Dx())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRenderOverlayShapeMismatch(t *testing.T) {
	v := NewViewer(ctVolume(4, 4, 1, 0))
	_, err := v.RenderOverlay(0, organ.WindowBone, []Layer{{Name: "x", Mask: models.NewVolume(3, 3, 1)}})
	assert.Error(t, err)
}
