// Package pipeline runs one case end to end: it reads a CT series, asks the
// prediction source for every organ, builds the structure set and stores it.
//
// The steps are:
//  1. Load the CT series and gather the patient/study record
//  2. Normalize the slices onto the common grid
//  3. Window the volume per organ and collect predictions in parallel
//  4. Postprocess, contour and assemble the structure set
//  5. Serialize and store the document
//  6. Optionally render preview overlays from the stored contours
//
// Nothing is stored unless every step before it succeeded.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"hnautoseg/internal/models"
	"hnautoseg/pkg/config"
	"hnautoseg/pkg/contour"
	"hnautoseg/pkg/geometry"
	"hnautoseg/pkg/organ"
	"hnautoseg/pkg/postprocess"
	"hnautoseg/pkg/prediction"
	"hnautoseg/pkg/rtstruct"
	"hnautoseg/pkg/storage"
	"hnautoseg/pkg/visualization"
)

// Result describes a finished case.
type Result struct {
	CaseID         string
	OutputPath     string
	SOPInstanceUID string
	ROIs           []rtstruct.ROI

	// Slices is the number of distinct slice heights in the volume
	Slices int

	// Invalid and NonCT count the files that were skipped
	Invalid int
	NonCT   int

	Previews []string
	Duration time.Duration
}

// Contours returns the total number of contours written.
func (r *Result) Contours() int {
	n := 0
	for _, roi := range r.ROIs {
		n += roi.Contours
	}
	return n
}

// Pipeline holds everything needed to process cases with one configuration.
// It is safe to run several cases concurrently.
type Pipeline struct {
	cfg        *config.Config
	kinds      []organ.Kind
	organs     *organ.Table
	loader     *geometry.Loader
	normalizer *geometry.Normalizer
	builder    *rtstruct.Builder
	source     prediction.Source
	store      storage.Store
	logger     *zap.Logger
}

// New validates cfg and wires the pipeline components.
func New(cfg *config.Config, source prediction.Source, store storage.Store, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	organs, err := cfg.OrganTable()
	if err != nil {
		return nil, err
	}
	kinds, err := cfg.OrganKinds()
	if err != nil {
		return nil, err
	}

	tracer, err := newTracer(cfg.Contours.Tracer)
	if err != nil {
		return nil, err
	}
	extractor := contour.NewExtractor(tracer, cfg.Processing.ImageSize, cfg.Processing.PixelSize)
	extractor.MinSliceVoxels = cfg.Contours.MinSliceVoxels
	extractor.MinPoints = cfg.Contours.MinContourPoints

	post := postprocess.Options{
		Tracer:             tracer,
		MinRegionPoints:    cfg.Contours.MinRegionPoints,
		VoxelwiseSmoothing: cfg.Processing.VoxelwiseSmoothing,
	}
	ss := cfg.StructureSet
	builder := rtstruct.NewBuilder(rtstruct.Options{
		UIDRoot:         ss.UIDRoot,
		Label:           ss.Label,
		Manufacturer:    ss.Manufacturer,
		ModelName:       ss.ModelName,
		SoftwareVersion: ss.SoftwareVersion,
		NumWorkers:      cfg.Processing.NumWorkers,
	}, organs, post, extractor, logger.Named("rtstruct"))

	return &Pipeline{
		cfg:        cfg,
		kinds:      kinds,
		organs:     organs,
		loader:     geometry.NewLoader(logger.Named("loader")),
		normalizer: geometry.NewNormalizer(cfg.Processing.ImageSize, cfg.Processing.PixelSize, cfg.Processing.HeightPrecision),
		builder:    builder,
		source:     source,
		store:      store,
		logger:     logger,
	}, nil
}

func newTracer(name string) (contour.Tracer, error) {
	if name == "opencv" {
		return contour.NewOpenCVTracer()
	}
	return contour.SuzukiTracer{}, nil
}

// Builder exposes the structure set builder, mainly so tests can pin its clock.
func (p *Pipeline) Builder() *rtstruct.Builder { return p.builder }

// Generate produces and stores the structure set for the CT images under
// imageDir.
func (p *Pipeline) Generate(ctx context.Context, imageDir, caseID string) (*Result, error) {
	start := time.Now()
	log := p.logger.With(zap.String("case", caseID))
	res := &Result{CaseID: caseID}

	// Step 1: Load the series and gather the study
	log.Info("Step 1: Loading CT series", zap.String("dir", imageDir))
	series, err := p.loader.LoadDir(ctx, imageDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load series: %w", err)
	}
	res.Invalid, res.NonCT = series.Invalid, series.NonCT
	study, uids, err := rtstruct.GatherStudy(series, p.cfg.Processing.InvalidFileTolerance, p.cfg.Processing.HeightPrecision)
	if err != nil {
		return nil, err
	}

	// Step 2: Normalize geometry
	log.Info("Step 2: Normalizing geometry", zap.Int("images", len(series.Slices)))
	norm, err := p.normalizer.Normalize(series.Slices)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize: %w", err)
	}
	res.Slices = len(norm.Heights)

	// Step 3: Predict every organ
	log.Info("Step 3: Collecting predictions", zap.Int("organs", len(p.kinds)))
	preds, err := p.predict(ctx, norm)
	if err != nil {
		return nil, err
	}

	// Step 4: Build the structure set
	log.Info("Step 4: Building structure set")
	doc, err := p.builder.Build(ctx, study, uids, preds)
	if err != nil {
		return nil, fmt.Errorf("failed to build structure set: %w", err)
	}
	res.SOPInstanceUID = doc.SOPInstanceUID
	res.ROIs = doc.ROIs

	// Step 5: Serialize and store
	log.Info("Step 5: Storing structure set")
	data, err := doc.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize structure set: %w", err)
	}
	res.OutputPath, err = p.store.Save(ctx, doc.Filename(p.cfg.Output.FilenamePattern, caseID), data)
	if err != nil {
		return nil, fmt.Errorf("failed to store structure set: %w", err)
	}

	// Step 6: Previews
	if p.cfg.Output.Preview {
		log.Info("Step 6: Rendering previews")
		res.Previews, err = p.preview(doc, norm, caseID)
		if err != nil {
			log.Warn("preview rendering failed", zap.Error(err))
		}
	}

	res.Duration = time.Since(start)
	log.Info("case finished",
		zap.String("output", res.OutputPath),
		zap.Int("rois", len(res.ROIs)),
		zap.Int("contours", res.Contours()),
		zap.Duration("elapsed", res.Duration))
	return res, nil
}

// predict windows the CT once per distinct window and requests every organ
// in parallel. Predictions come back in organ order.
func (p *Pipeline) predict(ctx context.Context, norm *geometry.Normalized) ([]models.ROIPrediction, error) {
	windowed := make(map[organ.Window]*models.Volume)
	for _, k := range p.kinds {
		w := p.organs.Get(k).Window
		if _, ok := windowed[w]; !ok {
			windowed[w] = geometry.ApplyWindowLevel(norm.Volume, w.Width, w.Level, true)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type predictionResult struct {
		idx  int
		pred *models.ROIPrediction
		err  error
	}
	resultChan := make(chan predictionResult)
	sem := make(chan struct{}, max(1, p.cfg.Processing.NumWorkers))

	for i, k := range p.kinds {
		go func(idx int, kind organ.Kind) {
			sem <- struct{}{}
			defer func() { <-sem }()
			input := windowed[p.organs.Get(kind).Window]
			pred, err := p.source.Predict(ctx, kind, input, norm.Heights)
			if err != nil {
				err = fmt.Errorf("prediction for %s: %w", kind, err)
			}
			resultChan <- predictionResult{idx: idx, pred: pred, err: err}
		}(i, k)
	}

	preds := make([]models.ROIPrediction, len(p.kinds))
	var firstErr error
	for range p.kinds {
		res := <-resultChan
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
				cancel()
			}
			continue
		}
		preds[res.idx] = *res.pred
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return preds, nil
}

// preview reads the contours back out of the finished document and draws
// them over the CT, so the images show exactly what was stored.
func (p *Pipeline) preview(doc *rtstruct.Document, norm *geometry.Normalized, caseID string) ([]string, error) {
	set, err := rtstruct.FromDataset(doc.Dataset)
	if err != nil {
		return nil, err
	}
	size, px, prec := p.cfg.Processing.ImageSize, p.cfg.Processing.PixelSize, p.cfg.Processing.HeightPrecision

	layers := make([]visualization.Layer, 0, len(set.ROIs))
	for i := range set.ROIs {
		roi := &set.ROIs[i]
		layers = append(layers, visualization.Layer{
			Name:  roi.Name,
			Mask:  rtstruct.Rasterize(roi, norm.Heights, size, px, prec),
			Color: roi.Color,
		})
	}
	viewer := visualization.NewViewer(norm.Volume)
	return viewer.SavePreviewSequence(filepath.Join(p.cfg.Output.PreviewDir, caseID), organ.WindowTissue, layers)
}
