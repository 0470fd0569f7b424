package postprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hnautoseg/internal/models"
	"hnautoseg/pkg/contour"
	"hnautoseg/pkg/organ"
)

// fillBox sets a rectangle of voxels on slice z to val.
func fillBox(v *models.Volume, z, x0, y0, x1, y1 int, val float64) {
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			v.Set(z, y, x, val)
		}
	}
}

// sliceWithSums builds a depth-long 8x8 volume whose slice z holds sums[z]
// voxels laid out row by row.
func sliceWithSums(sums ...int) *models.Volume {
	v := models.NewVolume(8, 8, len(sums))
	for z, n := range sums {
		s := v.Slice(z)
		for i := 0; i < n; i++ {
			s[i] = 1
		}
	}
	return v
}

func TestThreshold(t *testing.T) {
	v := models.NewVolume(2, 2, 1)
	v.Data = []float64{0.1, 0.33, 0.34, 1}
	out := Threshold(0.33)(v)
	assert.Equal(t, []float64{0, 0, 1, 1}, out.Data)
	assert.Equal(t, []float64{0.1, 0.33, 0.34, 1}, v.Data, "input must not change")
}

func TestLargestRegions(t *testing.T) {
	v := models.NewVolume(12, 8, 1)
	fillBox(v, 0, 1, 1, 4, 4, 1) // 4x4 blob
	fillBox(v, 0, 8, 1, 9, 2, 1) // 2x2 blob
	v.Set(0, 6, 6, 1)            // stray voxel

	single := LargestRegions(contour.SuzukiTracer{}, false, 3)(v)
	assert.Equal(t, 16.0, single.Sum())

	pair := LargestRegions(contour.SuzukiTracer{}, true, 3)(v)
	assert.Equal(t, 20.0, pair.Sum())
}

func TestLargestRegionsDegenerate(t *testing.T) {
	v := models.NewVolume(6, 6, 1)
	v.Set(0, 2, 2, 1)
	v.Set(0, 2, 3, 1)
	// two-pixel boundary is below the minimum point count
	out := LargestRegions(nil, false, 3)(v)
	assert.Equal(t, 0.0, out.Sum())
}

func TestLargestRegionsFillsHoles(t *testing.T) {
	v := models.NewVolume(7, 7, 1)
	fillBox(v, 0, 1, 1, 5, 5, 1)
	v.Set(0, 3, 3, 0)
	out := LargestRegions(nil, false, 3)(v)
	assert.Equal(t, 25.0, out.Sum())
}

func TestHeightPrior(t *testing.T) {
	v := sliceWithSums(1, 5, 5, 0, 9, 3)
	out := HeightPrior(2)(v)

	sums := sliceSums(out)
	assert.Equal(t, []float64{0, 0, 0, 0, 9, 3}, sums, "last window must be considered")

	// ties go to the earliest window
	v = sliceWithSums(3, 3, 0, 3, 3)
	assert.Equal(t, []float64{3, 3, 0, 0, 0}, sliceSums(HeightPrior(2)(v)))

	// shallower than the window: unchanged
	v = sliceWithSums(1, 2)
	assert.Equal(t, v.Data, HeightPrior(5)(v).Data)
}

func TestAxialContiguity(t *testing.T) {
	v := sliceWithSums(2, 0, 3, 3, 0, 7, 0)
	out := AxialContiguity()(v)
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 7, 0}, sliceSums(out))

	// first run wins ties
	v = sliceWithSums(4, 0, 2, 2)
	assert.Equal(t, []float64{4, 0, 0, 0}, sliceSums(AxialContiguity()(v)))

	empty := models.NewVolume(3, 3, 3)
	assert.Equal(t, empty.Data, AxialContiguity()(empty).Data)
}

func TestAxialContiguityIdempotent(t *testing.T) {
	v := sliceWithSums(5, 1, 0, 2, 8, 8, 0, 0, 3)
	once := AxialContiguity()(v)
	twice := AxialContiguity()(once)
	require.Equal(t, once.Data, twice.Data)
}

func TestZSmoothRemovesIsolatedNoise(t *testing.T) {
	v := models.NewVolume(4, 4, 3)
	fillBox(v, 1, 0, 0, 1, 1, 1)
	out := ZSmooth()(v)
	assert.Equal(t, 0.0, out.Sum())

	// a gap slice between two identical slices is filled
	v = models.NewVolume(4, 4, 3)
	fillBox(v, 0, 1, 1, 2, 2, 1)
	fillBox(v, 2, 1, 1, 2, 2, 1)
	out = ZSmooth()(v)
	assert.Equal(t, v.Slice(0), out.Slice(1))

	// differing neighbours leave the slice alone
	v = models.NewVolume(4, 4, 3)
	fillBox(v, 0, 0, 0, 0, 0, 1)
	fillBox(v, 1, 3, 3, 3, 3, 1)
	out = ZSmooth()(v)
	assert.Equal(t, v.Data, out.Data)
}

func TestZSmoothVoxelwise(t *testing.T) {
	v := models.NewVolume(4, 4, 3)
	fillBox(v, 0, 0, 0, 0, 0, 1) // neighbours differ only at (0,0)
	fillBox(v, 1, 2, 2, 3, 3, 1) // noise on the middle slice
	out := ZSmoothVoxelwise()(v)
	assert.Equal(t, 0.0, out.SliceSum(1))
	assert.Equal(t, 1.0, out.SliceSum(0))
}

func TestForOrganPipeline(t *testing.T) {
	v := models.NewVolume(8, 8, 5)
	for z := 1; z <= 3; z++ {
		fillBox(v, z, 2, 2, 5, 5, 0.9)
	}
	fillBox(v, 1, 7, 7, 7, 7, 0.9) // stray voxel, removed by region selection
	v.Set(4, 0, 0, 0.2)            // below threshold

	info := organ.Brain.Info()
	out := ForOrgan(info, DefaultOptions()).Run(v)
	assert.Equal(t, []float64{0, 16, 16, 16, 0}, sliceSums(out))
	for _, x := range out.Data {
		assert.Contains(t, []float64{0, 1}, x)
	}

	// A height prior limits the extent.
	info.MaxSlices = 2
	out = ForOrgan(info, DefaultOptions()).Run(v)
	assert.Equal(t, []float64{0, 16, 16, 0, 0}, sliceSums(out))
}
