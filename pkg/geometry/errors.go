package geometry

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidGeometry is returned for slices that cannot be placed on the
	// normalized grid, such as non-square pixel matrices.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrNoSlices is returned when a series contains no usable CT slice.
	ErrNoSlices = errors.New("no CT slices")

	// ErrUnsupportedPixelData is returned for compressed or multi-sample images.
	ErrUnsupportedPixelData = errors.New("unsupported pixel data")
)

// SliceError ties a per-file failure to its source.
type SliceError struct {
	File string
	Err  error
}

func (e *SliceError) Error() string {
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

func (e *SliceError) Unwrap() error {
	return e.Err
}
