// Package metrics measures spatial agreement between two binary volumes:
// voxel overlap (Dice, sensitivity, specificity) and surface distances
// (mean surface distance, percentile Hausdorff distance).
package metrics

import (
	"errors"
	"fmt"
	"math"

	"hnautoseg/internal/models"
)

// ErrShapeMismatch is returned when two volumes do not share dimensions.
var ErrShapeMismatch = errors.New("volume shapes differ")

// DiceSmoothing keeps Dice defined when both volumes are empty.
const DiceSmoothing = 1e-6

// confusion holds voxel counts with a treated as ground truth.
type confusion struct {
	tp, fp, fn, tn float64
}

func count(truth, pred *models.Volume) (confusion, error) {
	if !truth.SameShape(pred) {
		return confusion{}, fmt.Errorf("%w: %dx%dx%d vs %dx%dx%d", ErrShapeMismatch,
			truth.Depth, truth.Height, truth.Width, pred.Depth, pred.Height, pred.Width)
	}
	var c confusion
	for i, t := range truth.Data {
		p := pred.Data[i]
		switch {
		case t != 0 && p != 0:
			c.tp++
		case t == 0 && p != 0:
			c.fp++
		case t != 0 && p == 0:
			c.fn++
		default:
			c.tn++
		}
	}
	return c, nil
}

// Dice returns (2|A∩B| + eps) / (|A| + |B| + eps). Any nonzero voxel is
// foreground.
func Dice(a, b *models.Volume) (float64, error) {
	c, err := count(a, b)
	if err != nil {
		return 0, err
	}
	return c.dice(), nil
}

func (c confusion) dice() float64 {
	return (2*c.tp + DiceSmoothing) / ((c.tp + c.fn) + (c.tp + c.fp) + DiceSmoothing)
}

// Sensitivity is the fraction of truth voxels found in pred. It is NaN when
// truth is empty.
func Sensitivity(truth, pred *models.Volume) (float64, error) {
	c, err := count(truth, pred)
	if err != nil {
		return 0, err
	}
	return c.sensitivity(), nil
}

func (c confusion) sensitivity() float64 {
	if c.tp+c.fn == 0 {
		return math.NaN()
	}
	return c.tp / (c.tp + c.fn)
}

// Specificity is the fraction of truth background left empty in pred. It is
// NaN when truth has no background.
func Specificity(truth, pred *models.Volume) (float64, error) {
	c, err := count(truth, pred)
	if err != nil {
		return 0, err
	}
	return c.specificity(), nil
}

func (c confusion) specificity() float64 {
	if c.tn+c.fp == 0 {
		return math.NaN()
	}
	return c.tn / (c.tn + c.fp)
}
