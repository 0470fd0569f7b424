package prediction

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sbinet/npyio"

	"hnautoseg/internal/models"
	"hnautoseg/pkg/organ"
)

// NPYSource reads probability volumes exported by the model as NumPy
// arrays, one file per organ: <Dir>/<Organ>.npy or <Dir>/<Organ>_predicted.npy.
// Arrays are [slices, size, size] or [slices, size, size, 1] of float32 or
// float64.
type NPYSource struct {
	Dir string
}

// Predict implements Source.
func (s NPYSource) Predict(ctx context.Context, kind organ.Kind, input *models.Volume, heights []float64) (*models.ROIPrediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.find(kind)
	if err != nil {
		return nil, err
	}
	v, err := ReadNPY(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := checkShape(v, input); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	clamp(v)
	return &models.ROIPrediction{Organ: kind.String(), Volume: v, Heights: heights}, nil
}

func (s NPYSource) find(kind organ.Kind) (string, error) {
	for _, name := range []string{kind.String() + ".npy", kind.String() + "_predicted.npy"} {
		path := filepath.Join(s.Dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s in %s", ErrNotFound, kind, s.Dir)
}

// ReadNPY loads a [slices, size, size(, 1)] array as a volume.
func ReadNPY(path string) (*models.Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, err
	}
	shape := r.Header.Descr.Shape
	if r.Header.Descr.Fortran {
		return nil, fmt.Errorf("%w: fortran order is not supported", ErrShape)
	}
	switch {
	case len(shape) == 3:
	case len(shape) == 4 && shape[3] == 1:
	default:
		return nil, fmt.Errorf("%w: shape %v", ErrShape, shape)
	}
	depth, height, width := shape[0], shape[1], shape[2]
	v := models.NewVolume(width, height, depth)

	switch r.Header.Descr.Type {
	case "<f4", "f4":
		var data []float32
		if err := r.Read(&data); err != nil {
			return nil, err
		}
		if len(data) != len(v.Data) {
			return nil, fmt.Errorf("%w: %d values for shape %v", ErrShape, len(data), shape)
		}
		for i, x := range data {
			v.Data[i] = float64(x)
		}
	case "<f8", "f8":
		var data []float64
		if err := r.Read(&data); err != nil {
			return nil, err
		}
		if len(data) != len(v.Data) {
			return nil, fmt.Errorf("%w: %d values for shape %v", ErrShape, len(data), shape)
		}
		copy(v.Data, data)
	default:
		return nil, fmt.Errorf("unsupported dtype %q", r.Header.Descr.Type)
	}
	return v, nil
}
