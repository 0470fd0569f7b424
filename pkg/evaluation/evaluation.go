// Package evaluation compares the regions of two structure sets organ by
// organ.
package evaluation

import (
	"fmt"
	"runtime"
	"sort"

	"hnautoseg/internal/models"
	"hnautoseg/pkg/metrics"
	"hnautoseg/pkg/organ"
	"hnautoseg/pkg/rtstruct"
)

// Options controls rasterization and scoring.
type Options struct {
	ImageSize int
	PixelSize float64
	Precision float64

	// Organs supplies the bilateral flag; nil uses the built-in table
	Organs *organ.Table

	// Kinds restricts the comparison; empty compares every known organ
	Kinds []organ.Kind

	Metrics    metrics.Options
	NumWorkers int
}

// Row is the comparison of one organ.
type Row struct {
	Organ string
	metrics.Result

	TruthContours int
	PredContours  int

	// Missing names the side without this organ, if any
	Missing string
}

// Heights merges the contour heights of both structure sets.
func Heights(truth, pred *rtstruct.StructureSet, precision float64) []float64 {
	seen := make(map[models.HeightKey]bool)
	for _, h := range rtstruct.Heights(truth.ROIs, precision) {
		seen[models.KeyFor(h, precision)] = true
	}
	for _, h := range rtstruct.Heights(pred.ROIs, precision) {
		seen[models.KeyFor(h, precision)] = true
	}
	out := make([]float64, 0, len(seen))
	for k := range seen {
		out = append(out, k.Height(precision))
	}
	sort.Float64s(out)
	return out
}

// Compare scores pred against truth on the given slice heights. When
// heights is empty the union of both sets' contour heights is used. Organs
// absent from both sets are left out.
func Compare(truth, pred *rtstruct.StructureSet, heights []float64, opts Options) ([]Row, error) {
	if opts.Organs == nil {
		opts.Organs = organ.DefaultTable()
	}
	if len(opts.Kinds) == 0 {
		opts.Kinds = organ.All()
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = runtime.NumCPU()
	}
	if len(heights) == 0 {
		heights = Heights(truth, pred, opts.Precision)
	}
	if len(heights) == 0 {
		return nil, fmt.Errorf("no contours to compare")
	}

	type rowResult struct {
		idx int
		row *Row
		err error
	}
	resultChan := make(chan rowResult)
	sem := make(chan struct{}, opts.NumWorkers)
	for i, k := range opts.Kinds {
		go func(idx int, kind organ.Kind) {
			sem <- struct{}{}
			defer func() { <-sem }()
			row, err := compareOrgan(truth, pred, heights, kind, opts)
			resultChan <- rowResult{idx: idx, row: row, err: err}
		}(i, k)
	}

	rows := make([]*Row, len(opts.Kinds))
	var firstErr error
	for range opts.Kinds {
		res := <-resultChan
		if res.err != nil && firstErr == nil {
			firstErr = res.err
		}
		rows[res.idx] = res.row
	}
	if firstErr != nil {
		return nil, firstErr
	}

	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

func compareOrgan(truth, pred *rtstruct.StructureSet, heights []float64, kind organ.Kind, opts Options) (*Row, error) {
	info := opts.Organs.Get(kind)
	t := find(truth, info)
	p := find(pred, info)
	if t == nil && p == nil {
		return nil, nil
	}

	row := &Row{Organ: info.Name}
	switch {
	case t == nil:
		row.Missing = "truth"
	case p == nil:
		row.Missing = "prediction"
	}

	tv := raster(t, heights, opts)
	pv := raster(p, heights, opts)
	if t != nil {
		row.TruthContours = len(t.Contours)
	}
	if p != nil {
		row.PredContours = len(p.Contours)
	}

	mo := opts.Metrics
	mo.Bilateral = info.Bilateral
	res, err := metrics.Evaluate(tv, pv, mo)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", info.Name, err)
	}
	row.Result = res
	return row, nil
}

func find(set *rtstruct.StructureSet, info organ.Info) *rtstruct.ROIContours {
	if r, ok := set.ROI(info.Label); ok {
		return r
	}
	if r, ok := set.ROI(info.Name); ok {
		return r
	}
	return nil
}

func raster(roi *rtstruct.ROIContours, heights []float64, opts Options) *models.Volume {
	if roi == nil {
		return models.NewVolume(opts.ImageSize, opts.ImageSize, len(heights))
	}
	return rtstruct.Rasterize(roi, heights, opts.ImageSize, opts.PixelSize, opts.Precision)
}
