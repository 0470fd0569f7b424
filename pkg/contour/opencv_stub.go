//go:build !gocv
// +build !gocv

package contour

import "errors"

// NewOpenCVTracer returns an error when built without the gocv tag.
func NewOpenCVTracer() (Tracer, error) {
	return nil, errors.New("gocv build tag is not enabled")
}
