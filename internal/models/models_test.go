package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVolumeIndexing(t *testing.T) {
	v := NewVolume(4, 3, 2)
	v.Set(1, 2, 3, 7)

	assert.Equal(t, 1*4*3+2*4+3, v.Index(1, 2, 3))
	assert.Equal(t, 7.0, v.At(1, 2, 3))
	assert.Equal(t, 7.0, v.SliceSum(1))
	assert.Equal(t, 0.0, v.SliceSum(0))

	c := v.Clone()
	c.Set(1, 2, 3, 0)
	assert.Equal(t, 7.0, v.Sum(), "clone must not alias the original")
	assert.True(t, v.SameShape(c))
}

func TestCTSliceHU(t *testing.T) {
	s := &CTSlice{Pixels: []int{0, 1024, 2048}, RescaleSlope: 1, RescaleIntercept: -1024}
	assert.Equal(t, []float64{-1024, 0, 1024}, s.HU())

	// A missing slope behaves as 1.
	s.RescaleSlope = 0
	assert.Equal(t, []float64{-1024, 0, 1024}, s.HU())
}

func TestUIDMapRounding(t *testing.T) {
	m := NewUIDMap(0.25)
	m.Set(10.12, ImageRef{InstanceUID: "a"})
	m.Set(-3.0, ImageRef{InstanceUID: "b"})
	m.Set(10.02, ImageRef{InstanceUID: "c"}) // same quarter-mm bucket as 10.12

	require.Equal(t, 2, m.Len())
	ref, ok := m.Lookup(10.0)
	require.True(t, ok)
	assert.Equal(t, "c", ref.InstanceUID)

	assert.Equal(t, []float64{-3.0, 10.0}, m.Heights())
	assert.Equal(t, "b", m.Refs()[0].InstanceUID)

	_, ok = m.Lookup(11)
	assert.False(t, ok)
}

func TestContourAccessors(t *testing.T) {
	c := Contour{Points: []float64{1, 2, 5.5, 3, 4, 5.5}}
	assert.Equal(t, 2, c.NumPoints())
	assert.Equal(t, 5.5, c.Z())
	assert.Equal(t, 0.0, Contour{}.Z())
}
