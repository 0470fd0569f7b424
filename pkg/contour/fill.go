package contour

import (
	"image"
	"math"
	"sort"
)

// FillPolygon sets every pixel inside or on poly to 1 in dst, a width x height
// row-major grid. Vertices outside the grid are clipped.
func FillPolygon(dst []uint8, width, height int, poly Polygon) {
	if len(poly) == 0 {
		return
	}
	set := func(x, y int) {
		if x >= 0 && x < width && y >= 0 && y < height {
			dst[y*width+x] = 1
		}
	}

	minY, maxY := poly[0].Y, poly[0].Y
	for _, p := range poly {
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}

	// Interior by even-odd scanlines through pixel centres.
	xs := make([]float64, 0, 8)
	for y := minY; y <= maxY; y++ {
		xs = xs[:0]
		fy := float64(y)
		for i := range poly {
			a, b := poly[i], poly[(i+1)%len(poly)]
			ay, by := float64(a.Y), float64(b.Y)
			if (ay <= fy && fy < by) || (by <= fy && fy < ay) {
				t := (fy - ay) / (by - ay)
				xs = append(xs, float64(a.X)+t*float64(b.X-a.X))
			}
		}
		sort.Float64s(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			for x := int(math.Ceil(xs[i])); x <= int(math.Floor(xs[i+1])); x++ {
				set(x, y)
			}
		}
	}

	// Boundary.
	for i := range poly {
		drawLine(poly[i], poly[(i+1)%len(poly)], set)
	}
}

// drawLine plots the segment a-b with Bresenham's algorithm.
func drawLine(a, b image.Point, set func(x, y int)) {
	dx := abs(b.X - a.X)
	dy := -abs(b.Y - a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	err := dx + dy
	x, y := a.X, a.Y
	for {
		set(x, y)
		if x == b.X && y == b.Y {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
