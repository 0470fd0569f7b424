package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"hnautoseg/internal/dicomtest"
	"hnautoseg/internal/models"
	"hnautoseg/pkg/config"
	"hnautoseg/pkg/geometry"
	"hnautoseg/pkg/organ"
	"hnautoseg/pkg/prediction"
	"hnautoseg/pkg/rtstruct"
	"hnautoseg/pkg/storage"
)

const size = 8

func block(depth, x0, y0, x1, y1 int, p float64, slices ...int) *models.Volume {
	v := models.NewVolume(size, size, depth)
	for _, z := range slices {
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				v.Set(z, y, x, p)
			}
		}
	}
	return v
}

type fixture struct {
	cfg      *config.Config
	imageDir string
	outDir   string
	source   *prediction.StaticSource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	imageDir := filepath.Join(root, "ct")
	require.NoError(t, os.MkdirAll(imageDir, 0755))
	_, err := dicomtest.Series(imageDir, 3, 0, 2.5, dicomtest.CT{Size: size, Intercept: -1024})
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Processing.ImageSize = size
	cfg.Processing.NumWorkers = 2
	cfg.Processing.Organs = []string{"Brain", "ParotidL"}
	cfg.Output.Dir = filepath.Join(root, "out")
	cfg.Output.PreviewDir = filepath.Join(root, "preview")

	source := prediction.NewStaticSource()
	source.Add(organ.Brain, block(3, 2, 2, 6, 6, 0.9, 0, 1, 2))
	source.Add(organ.ParotidL, block(3, 1, 1, 4, 4, 0.5, 0, 1))

	return &fixture{cfg: cfg, imageDir: imageDir, outDir: cfg.Output.Dir, source: source}
}

func (f *fixture) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	logger := zaptest.NewLogger(t)
	p, err := New(f.cfg, f.source, storage.NewFileStore(f.outDir, logger), logger)
	require.NoError(t, err)
	p.Builder().Now = func() time.Time { return time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC) }
	return p
}

func TestGenerateWritesStructureSet(t *testing.T) {
	f := newFixture(t)
	res, err := f.pipeline(t).Generate(context.Background(), f.imageDir, "HN-001")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(f.outDir, "RS.HN-001-CNN.dcm"), res.OutputPath)
	assert.Equal(t, 3, res.Slices)
	assert.Zero(t, res.Invalid)
	assert.Equal(t, 5, res.Contours())
	assert.Empty(t, res.Previews)

	set, err := rtstruct.ReadFile(res.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, res.SOPInstanceUID, set.SOPInstanceUID)
	assert.Equal(t, "HN-001", set.PatientID)
	assert.Equal(t, "1.2.826.0.1.3680043.8.498.3", set.FrameOfReferenceUID)
	require.Len(t, set.ROIs, 2)
	brain, ok := set.ROI("Brain")
	require.True(t, ok)
	assert.Len(t, brain.Contours, 3)
	parotid, ok := set.ROI("Parotid L")
	require.True(t, ok)
	assert.Len(t, parotid.Contours, 2)
}

func TestGenerateRendersPreviews(t *testing.T) {
	f := newFixture(t)
	f.cfg.Output.Preview = true
	res, err := f.pipeline(t).Generate(context.Background(), f.imageDir, "case7")
	require.NoError(t, err)

	dir := filepath.Join(f.cfg.Output.PreviewDir, "case7")
	assert.Equal(t, []string{
		filepath.Join(dir, "slice_000.png"),
		filepath.Join(dir, "slice_001.png"),
		filepath.Join(dir, "slice_002.png"),
	}, res.Previews)
	for _, p := range res.Previews {
		assert.FileExists(t, p)
	}
}

func TestGenerateMissingPredictionStoresNothing(t *testing.T) {
	f := newFixture(t)
	f.cfg.Processing.Organs = []string{"Brain", "SpinalCord"}
	_, err := f.pipeline(t).Generate(context.Background(), f.imageDir, "HN-001")
	assert.ErrorIs(t, err, prediction.ErrNotFound)
	assert.NoDirExists(t, f.outDir)
}

func TestGenerateEmptyDirectory(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline(t).Generate(context.Background(), t.TempDir(), "HN-001")
	assert.ErrorIs(t, err, geometry.ErrNoSlices)
	assert.NoDirExists(t, f.outDir)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Processing.Organs = []string{"Liver"}
	_, err := New(cfg, prediction.NewStaticSource(), storage.NewFileStore(t.TempDir(), nil), nil)
	assert.ErrorIs(t, err, organ.ErrUnknownROI)
}
