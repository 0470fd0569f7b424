package models

// Volume represents a 3D image or mask stack
type Volume struct {
	// Data is the 3D volume data as a 1D array in z, y, x row-major order
	Data []float64

	// Width is the width of the volume in voxels
	Width int

	// Height is the height of the volume in voxels
	Height int

	// Depth is the number of axial slices
	Depth int
}

// NewVolume allocates a zero-filled volume.
func NewVolume(width, height, depth int) *Volume {
	return &Volume{
		Data:   make([]float64, width*height*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
	}
}

// SliceLen returns the number of voxels in one axial slice.
func (v *Volume) SliceLen() int { return v.Width * v.Height }

// Index returns the offset of voxel (z, y, x) in Data.
func (v *Volume) Index(z, y, x int) int {
	return z*v.Width*v.Height + y*v.Width + x
}

// At returns the value of voxel (z, y, x).
func (v *Volume) At(z, y, x int) float64 { return v.Data[v.Index(z, y, x)] }

// Set assigns the value of voxel (z, y, x).
func (v *Volume) Set(z, y, x int, val float64) { v.Data[v.Index(z, y, x)] = val }

// Slice returns the axial slice z. The returned slice aliases Data.
func (v *Volume) Slice(z int) []float64 {
	n := v.SliceLen()
	return v.Data[z*n : (z+1)*n]
}

// Clone returns a deep copy.
func (v *Volume) Clone() *Volume {
	out := &Volume{Width: v.Width, Height: v.Height, Depth: v.Depth}
	out.Data = make([]float64, len(v.Data))
	copy(out.Data, v.Data)
	return out
}

// SameShape reports whether both volumes have identical dimensions.
func (v *Volume) SameShape(o *Volume) bool {
	return v.Width == o.Width && v.Height == o.Height && v.Depth == o.Depth
}

// Sum returns the total of all voxel values.
func (v *Volume) Sum() float64 {
	var s float64
	for _, x := range v.Data {
		s += x
	}
	return s
}

// SliceSum returns the total of voxel values in slice z.
func (v *Volume) SliceSum(z int) float64 {
	var s float64
	for _, x := range v.Slice(z) {
		s += x
	}
	return s
}

// SliceMask returns slice z as a binary uint8 grid (nonzero -> 1).
func (v *Volume) SliceMask(z int) []uint8 {
	src := v.Slice(z)
	out := make([]uint8, len(src))
	for i, x := range src {
		if x != 0 {
			out[i] = 1
		}
	}
	return out
}

// Contour is a closed planar polygon in patient coordinates, stored as
// interleaved x, y, z triples in mm.
type Contour struct {
	Points []float64
}

// NumPoints returns the number of vertices.
func (c Contour) NumPoints() int { return len(c.Points) / 3 }

// Z returns the height of the contour plane.
func (c Contour) Z() float64 {
	if len(c.Points) < 3 {
		return 0
	}
	return c.Points[2]
}

// ROIPrediction is the per-organ probability volume produced by the model,
// aligned with the normalized CT heights.
type ROIPrediction struct {
	Organ   string
	Volume  *Volume
	Heights []float64
}
