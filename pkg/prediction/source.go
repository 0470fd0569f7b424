// Package prediction is the boundary to the segmentation model. The model
// itself runs elsewhere; a Source only has to hand back one probability
// volume per organ, aligned with the normalized CT volume.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"hnautoseg/internal/models"
	"hnautoseg/pkg/organ"
)

var (
	// ErrShape is returned when a probability volume does not match the CT grid.
	ErrShape = errors.New("prediction shape mismatch")

	// ErrNotFound is returned when a source has nothing for an organ.
	ErrNotFound = errors.New("no prediction for organ")
)

// Source produces the probability volume of one organ for a windowed CT
// volume. heights lists the z position of each slice of input.
type Source interface {
	Predict(ctx context.Context, kind organ.Kind, input *models.Volume, heights []float64) (*models.ROIPrediction, error)
}

// StaticSource serves precomputed volumes keyed by organ name.
type StaticSource struct {
	mu      sync.RWMutex
	volumes map[string]*models.Volume
}

// NewStaticSource returns an empty StaticSource.
func NewStaticSource() *StaticSource {
	return &StaticSource{volumes: make(map[string]*models.Volume)}
}

// Add registers the volume returned for kind.
func (s *StaticSource) Add(kind organ.Kind, v *models.Volume) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volumes[kind.String()] = v
}

// Predict implements Source.
func (s *StaticSource) Predict(ctx context.Context, kind organ.Kind, input *models.Volume, heights []float64) (*models.ROIPrediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	v, ok := s.volumes[kind.String()]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, kind)
	}
	if err := checkShape(v, input); err != nil {
		return nil, err
	}
	return &models.ROIPrediction{Organ: kind.String(), Volume: v.Clone(), Heights: heights}, nil
}

func checkShape(v, input *models.Volume) error {
	if !v.SameShape(input) {
		return fmt.Errorf("%w: got %dx%dx%d, want %dx%dx%d", ErrShape,
			v.Depth, v.Height, v.Width, input.Depth, input.Height, input.Width)
	}
	return nil
}

// clamp limits every value to [0, 1].
func clamp(v *models.Volume) {
	for i, x := range v.Data {
		switch {
		case x < 0:
			v.Data[i] = 0
		case x > 1:
			v.Data[i] = 1
		}
	}
}
