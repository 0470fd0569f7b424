package contour

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hnautoseg/internal/models"
)

// gridFromRows builds a binary grid from strings of '#' and '.'
func gridFromRows(rows ...string) ([]uint8, int, int) {
	h := len(rows)
	w := len(rows[0])
	out := make([]uint8, w*h)
	for y, r := range rows {
		for x, c := range r {
			if c == '#' {
				out[y*w+x] = 1
			}
		}
	}
	return out, w, h
}

func TestTraceSquares(t *testing.T) {
	var tr SuzukiTracer

	mask, w, h := gridFromRows(
		"....",
		".##.",
		".##.",
		"....",
	)
	polys := tr.Trace(mask, w, h)
	require.Len(t, polys, 1)
	assert.Equal(t, Polygon{{1, 1}, {1, 2}, {2, 2}, {2, 1}}, polys[0])

	mask, w, h = gridFromRows(
		"###",
		"###",
		"###",
	)
	polys = tr.Trace(mask, w, h)
	require.Len(t, polys, 1)
	assert.Len(t, polys[0], 8)

	mask, w, h = gridFromRows(
		"...",
		".#.",
		"...",
	)
	polys = tr.Trace(mask, w, h)
	require.Len(t, polys, 1)
	assert.Equal(t, Polygon{{1, 1}}, polys[0])
}

func TestTraceOrderAndHoles(t *testing.T) {
	var tr SuzukiTracer
	mask, w, h := gridFromRows(
		"##....",
		"##....",
		"......",
		"..####",
		"..#..#",
		"..####",
	)
	polys := tr.Trace(mask, w, h)
	// small square, ring outer border, ring hole border
	require.Len(t, polys, 3)
	assert.Equal(t, image.Point{0, 0}, polys[0][0])
	assert.Equal(t, image.Point{2, 3}, polys[1][0])
	assert.Len(t, polys[0], 4)
	assert.Len(t, polys[1], 10)

	sorted := SortBySize(polys)
	assert.Len(t, sorted[0], 10)
}

func TestLargestTieBreak(t *testing.T) {
	a := Polygon{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	b := Polygon{{5, 5}, {6, 5}, {6, 6}, {5, 6}}
	c := Polygon{{9, 9}}

	primary, secondary := Largest([]Polygon{c, a, b}, true)
	assert.Equal(t, a, primary, "first discovered wins on equal size")
	assert.Equal(t, b, secondary)

	primary, secondary = Largest([]Polygon{a, b}, false)
	assert.Equal(t, a, primary)
	assert.Nil(t, secondary)
}

func TestFillPolygonRecoversRegion(t *testing.T) {
	src, w, h := gridFromRows(
		"........",
		"..####..",
		".######.",
		".######.",
		"..####..",
		"........",
	)
	var tr SuzukiTracer
	polys := tr.Trace(src, w, h)
	require.Len(t, polys, 1)

	dst := make([]uint8, w*h)
	FillPolygon(dst, w, h, polys[0])
	assert.Equal(t, src, dst)
}

func TestExtractorCoordinates(t *testing.T) {
	vol := models.NewVolume(8, 8, 3)
	// 2x2 square on slice 1 only
	for _, p := range [][2]int{{4, 4}, {5, 4}, {4, 5}, {5, 5}} {
		vol.Set(1, p[1], p[0], 1)
	}
	// a lone voxel on slice 2 is below the slice threshold
	vol.Set(2, 0, 0, 1)

	e := NewExtractor(SuzukiTracer{}, 8, 1.0)
	cs, err := e.Extract(vol, []float64{-2.5, 0, 2.5}, false)
	require.NoError(t, err)
	require.Len(t, cs, 1)

	c := cs[0]
	assert.Equal(t, 4, c.NumPoints())
	assert.Equal(t, 0.0, c.Z())
	assert.Equal(t, []float64{0, 0, 0, 0, 1, 0, 1, 1, 0, 1, 0, 0}, c.Points)

	_, err = e.Extract(vol, []float64{0}, false)
	assert.Error(t, err)
}

func TestExtractorBilateral(t *testing.T) {
	vol := models.NewVolume(10, 6, 1)
	for y := 1; y <= 3; y++ {
		for x := 1; x <= 3; x++ {
			vol.Set(0, y, x, 1)
			vol.Set(0, y, x+5, 1)
		}
	}
	e := NewExtractor(nil, 10, 0.5)
	single, err := e.Extract(vol, []float64{10}, false)
	require.NoError(t, err)
	assert.Len(t, single, 1)

	pair, err := e.Extract(vol, []float64{10}, true)
	require.NoError(t, err)
	require.Len(t, pair, 2)
	// left blob discovered first
	assert.Equal(t, (1.0-5)*0.5, pair[0].Points[0])
	assert.Equal(t, (6.0-5)*0.5, pair[1].Points[0])
}
