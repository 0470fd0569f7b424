package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hnautoseg/internal/models"
)

// square fills [x0, x0+n) x [y0, y0+n) with 1 on the listed slices.
func square(w, h, d, x0, y0, n int, slices ...int) *models.Volume {
	v := models.NewVolume(w, h, d)
	for _, z := range slices {
		for y := y0; y < y0+n; y++ {
			for x := x0; x < x0+n; x++ {
				v.Set(z, y, x, 1)
			}
		}
	}
	return v
}

func TestDiceShiftedSquare(t *testing.T) {
	a := square(4, 4, 3, 1, 1, 2, 1)
	b := square(4, 4, 3, 2, 2, 2, 1)

	d, err := Dice(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, d, 1e-6)

	sens, err := Sensitivity(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, sens, 1e-12)

	// 48 voxels, union of 7, 3 false positives
	spec, err := Specificity(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 41.0/44.0, spec, 1e-12)
}

func TestDiceProperties(t *testing.T) {
	a := square(8, 8, 4, 1, 1, 4, 1, 2)
	b := square(8, 8, 4, 2, 3, 3, 2, 3)

	ab, err := Dice(a, b)
	require.NoError(t, err)
	ba, err := Dice(b, a)
	require.NoError(t, err)
	assert.Equal(t, ab, ba)
	assert.Greater(t, ab, 0.0)
	assert.LessOrEqual(t, ab, 1.0)

	same, err := Dice(a, a.Clone())
	require.NoError(t, err)
	assert.Equal(t, 1.0, same)

	empty := models.NewVolume(8, 8, 4)
	both, err := Dice(empty, empty)
	require.NoError(t, err)
	assert.Equal(t, 1.0, both)

	disjoint, err := Dice(a, empty)
	require.NoError(t, err)
	assert.Greater(t, disjoint, 0.0)
	assert.Less(t, disjoint, 1e-6)
}

func TestSensitivityUndefined(t *testing.T) {
	empty := models.NewVolume(4, 4, 1)
	s, err := Sensitivity(empty, square(4, 4, 1, 0, 0, 2, 0))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(s))

	full := square(4, 4, 1, 0, 0, 4, 0)
	s, err = Specificity(full, full)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(s))
}

func TestShapeMismatch(t *testing.T) {
	_, err := Dice(models.NewVolume(4, 4, 2), models.NewVolume(4, 4, 3))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = Evaluate(models.NewVolume(4, 4, 2), models.NewVolume(5, 4, 2), DefaultOptions())
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestSurfacePoints(t *testing.T) {
	v := square(8, 8, 3, 2, 2, 3, 0, 2)
	pts := SurfacePoints(v, 2.5, false, nil)
	require.Len(t, pts, 16)
	assert.Equal(t, 0.0, pts[0].Z)
	assert.Equal(t, 5.0, pts[8].Z)
}

func TestIdenticalVolumesHaveZeroDistance(t *testing.T) {
	a := square(8, 8, 1, 2, 2, 4, 0)
	res, err := Evaluate(a, a.Clone(), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.MSD)
	assert.Equal(t, 0.0, res.HD)
	assert.Equal(t, 1.0, res.Dice)
}

func TestEmptySurfaceSentinel(t *testing.T) {
	a := square(8, 8, 2, 2, 2, 3, 0)
	res, err := Evaluate(a, models.NewVolume(8, 8, 2), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, NoSurfaceDistance, res.MSD)
	assert.Equal(t, NoSurfaceDistance, res.HD)
}

func TestHausdorffMonotone(t *testing.T) {
	a := square(12, 12, 4, 1, 1, 5, 0, 1, 2)
	b := square(12, 12, 4, 3, 2, 6, 1, 2, 3)
	ab, ba := DistanceSets(a, b, 1, false, nil, KDTreeSearch{})
	require.NotEmpty(t, ab)
	require.NotEmpty(t, ba)

	prev := -1.0
	for _, p := range []float64{0, 25, 50, 75, 95, 99, 100} {
		hd := HausdorffPercentile(ab, ba, 1, p)
		assert.GreaterOrEqual(t, hd, prev, "p=%v", p)
		prev = hd
	}

	maxD := 0.0
	for _, d := range append(append([]float64{}, ab...), ba...) {
		maxD = math.Max(maxD, d)
	}
	assert.Equal(t, maxD, HausdorffPercentile(ab, ba, 1, 100))
	assert.Equal(t, 2*maxD, HausdorffPercentile(ab, ba, 2, 100))
}

func TestHausdorffIndex(t *testing.T) {
	ab := []float64{4, 1, 3}
	ba := []float64{2, 0}
	// sorted 0 1 2 3 4
	assert.Equal(t, 0.0, HausdorffPercentile(ab, ba, 1, 0))
	assert.Equal(t, 2.0, HausdorffPercentile(ab, ba, 1, 50))
	assert.Equal(t, 4.0, HausdorffPercentile(ab, ba, 1, 95))
	assert.Equal(t, 4.0, HausdorffPercentile(ab, ba, 1, 100))
	assert.Equal(t, 2.0, MeanSurfaceDistance(ab, ba, 1))
	assert.Equal(t, 1.0, MeanSurfaceDistance(ab, ba, 0.5))
}

func TestSearchersAgreeOnDenseSurfaces(t *testing.T) {
	a := square(16, 16, 3, 2, 2, 6, 0, 1, 2)
	b := square(16, 16, 3, 4, 3, 7, 0, 1)
	sa := SurfacePoints(a, 1, false, nil)
	sb := SurfacePoints(b, 1, false, nil)

	box := BoxSearch{InitialRadius: 5}.Distances(sa, sb)
	exact := KDTreeSearch{}.Distances(sa, sb)
	require.Len(t, box, len(sa))
	for i := range exact {
		assert.InDelta(t, exact[i], box[i], 1e-9, "point %d", i)
	}
}

func TestBoxSearchExpands(t *testing.T) {
	from := Points3D{{X: 0, Y: 0, Z: 0}}
	to := Points3D{{X: 30, Y: 0, Z: 0}, {X: 40, Y: 1, Z: 0}}
	d := BoxSearch{InitialRadius: 1}.Distances(from, to)
	assert.Equal(t, []float64{30}, d)
}

func TestNewSearcher(t *testing.T) {
	s, err := NewSearcher("kdtree", 0)
	require.NoError(t, err)
	assert.IsType(t, KDTreeSearch{}, s)

	s, err = NewSearcher("", 3)
	require.NoError(t, err)
	assert.Equal(t, BoxSearch{InitialRadius: 3}, s)

	_, err = NewSearcher("grid", 0)
	assert.Error(t, err)
}

func TestKDTreeSearchFindsExactNearest(t *testing.T) {
	surface := Points3D{{X: 0, Y: 0, Z: 0}, {X: 4, Y: 0, Z: 0}, {X: 0, Y: 3, Z: 5}, {X: 9, Y: 9, Z: 2.5}}
	from := Points3D{{X: 4, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 9, Y: 9, Z: 5}}

	d := KDTreeSearch{}.Distances(from, surface)
	require.Len(t, d, 3)
	assert.InDelta(t, 0, d[0], 1e-12)
	assert.InDelta(t, 1, d[1], 1e-12)
	assert.InDelta(t, 2.5, d[2], 1e-12)

	assert.Equal(t, 3.0, Point3D{X: 1, Y: 2, Z: 3}.Compare(Point3D{X: 5, Y: 2, Z: 0}, 2))
	assert.Equal(t, 25.0, Point3D{}.Distance(Point3D{X: 3, Y: 4}))
}
