//go:build gocv
// +build gocv

package contour

import (
	"gocv.io/x/gocv"
)

// OpenCVTracer delegates border following to OpenCV's findContours with
// list retrieval and no chain approximation.
type OpenCVTracer struct{}

// NewOpenCVTracer returns the OpenCV backed tracer.
func NewOpenCVTracer() (Tracer, error) {
	return OpenCVTracer{}, nil
}

// Trace implements Tracer.
func (OpenCVTracer) Trace(mask []uint8, width, height int) []Polygon {
	mat, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8U, mask)
	if err != nil {
		return nil
	}
	defer mat.Close()

	contours := gocv.FindContours(mat, gocv.RetrievalList, gocv.ChainApproxNone)
	defer contours.Close()

	out := make([]Polygon, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		out = append(out, Polygon(contours.At(i).ToPoints()))
	}
	return out
}
