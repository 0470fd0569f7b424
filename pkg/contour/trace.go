// Package contour finds polygon boundaries in binary slices and turns
// cleaned mask volumes into structure-set contour point lists.
package contour

import (
	"image"
	"sort"
)

// Polygon is a closed boundary as pixel coordinates (X = column, Y = row).
type Polygon []image.Point

// Tracer finds every boundary in a binary slice. Implementations must return
// borders in a deterministic order.
type Tracer interface {
	Trace(mask []uint8, width, height int) []Polygon
}

// neighbour offsets indexed by chain direction: 0=E, 1=NE, 2=N, 3=NW, 4=W,
// 5=SW, 6=S, 7=SE. Increasing index is counterclockwise on screen.
var dirDX = [8]int{1, 1, 0, -1, -1, -1, 0, 1}
var dirDY = [8]int{0, -1, -1, -1, 0, 1, 1, 1}

// SuzukiTracer implements Suzuki-Abe border following with 8-connectivity.
// All outer and hole borders are returned in raster discovery order and every
// border pixel is kept.
type SuzukiTracer struct{}

// Trace implements Tracer.
func (SuzukiTracer) Trace(mask []uint8, width, height int) []Polygon {
	// Work on a copy framed by one row/column of zeros.
	pw, ph := width+2, height+2
	f := make([]int32, pw*ph)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if mask[y*width+x] != 0 {
				f[(y+1)*pw+x+1] = 1
			}
		}
	}
	at := func(x, y int) int32 { return f[y*pw+x] }
	dirOf := func(cx, cy, nx, ny int) int {
		for d := 0; d < 8; d++ {
			if cx+dirDX[d] == nx && cy+dirDY[d] == ny {
				return d
			}
		}
		return 0
	}

	var out []Polygon
	nbd := int32(1)
	for y := 1; y < ph-1; y++ {
		for x := 1; x < pw-1; x++ {
			v := at(x, y)
			if v == 0 {
				continue
			}
			var fromX, fromY int
			switch {
			case v == 1 && at(x-1, y) == 0:
				fromX, fromY = x-1, y
			case v >= 1 && at(x+1, y) == 0:
				fromX, fromY = x+1, y
			default:
				continue
			}
			nbd++
			out = append(out, follow(f, pw, x, y, fromX, fromY, nbd, dirOf))
		}
	}
	return out
}

// follow traces one border starting at (sx, sy), entered from the zero
// neighbour (fx, fy), labelling visited pixels with nbd.
func follow(f []int32, pw, sx, sy, fx, fy int, nbd int32, dirOf func(int, int, int, int) int) Polygon {
	idx := func(x, y int) int { return y*pw + x }

	// Clockwise search for the first nonzero neighbour of the start pixel.
	d0 := dirOf(sx, sy, fx, fy)
	x1, y1 := -1, -1
	for k := 0; k < 8; k++ {
		d := (d0 - k + 8) % 8
		nx, ny := sx+dirDX[d], sy+dirDY[d]
		if f[idx(nx, ny)] != 0 {
			x1, y1 = nx, ny
			break
		}
	}
	if x1 < 0 {
		f[idx(sx, sy)] = -nbd
		return Polygon{{X: sx - 1, Y: sy - 1}}
	}

	poly := Polygon{}
	x2, y2 := x1, y1
	x3, y3 := sx, sy
	for {
		poly = append(poly, image.Point{X: x3 - 1, Y: y3 - 1})

		// Counterclockwise search starting after the previous pixel.
		d2 := dirOf(x3, y3, x2, y2)
		eastZero := false
		x4, y4 := x2, y2
		for k := 1; k <= 8; k++ {
			d := (d2 + k) % 8
			nx, ny := x3+dirDX[d], y3+dirDY[d]
			if f[idx(nx, ny)] != 0 {
				x4, y4 = nx, ny
				break
			}
			if d == 0 {
				eastZero = true
			}
		}

		switch {
		case eastZero:
			f[idx(x3, y3)] = -nbd
		case f[idx(x3, y3)] == 1:
			f[idx(x3, y3)] = nbd
		}

		if x4 == sx && y4 == sy && x3 == x1 && y3 == y1 {
			return poly
		}
		x2, y2 = x3, y3
		x3, y3 = x4, y4
	}
}

// SortBySize orders polygons by point count, largest first. Equal sizes keep
// the tracer's discovery order.
func SortBySize(polys []Polygon) []Polygon {
	out := make([]Polygon, len(polys))
	copy(out, polys)
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

// Largest returns the largest polygon and, when bilateral is set, the second
// largest. Missing entries are nil.
func Largest(polys []Polygon, bilateral bool) (primary, secondary Polygon) {
	sorted := SortBySize(polys)
	if len(sorted) > 0 {
		primary = sorted[0]
	}
	if bilateral && len(sorted) > 1 {
		secondary = sorted[1]
	}
	return primary, secondary
}
