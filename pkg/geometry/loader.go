package geometry

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/suyashkumar/dicom"
	"go.uber.org/zap"

	"hnautoseg/internal/models"
)

// Series is the result of scanning one or more directories for CT images.
type Series struct {
	// Slices holds every CT image read, in file path order
	Slices []*models.CTSlice

	// Total is the number of .dcm files examined
	Total int

	// Invalid counts files that could not be parsed or decoded
	Invalid int

	// NonCT counts parsed files of another modality, which are skipped
	NonCT int

	// Skipped counts files without the .dcm extension
	Skipped int

	// Errors keeps the per-file failures behind Invalid
	Errors []*SliceError
}

// Loader reads CT series from disk.
type Loader struct {
	logger *zap.Logger
}

// NewLoader creates a loader. A nil logger disables logging.
func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger}
}

// LoadDir walks dirs and reads every .dcm file in sorted path order.
// Unreadable files are recorded on the returned series rather than failing
// the whole scan; the caller decides whether the invalid fraction is
// acceptable.
func (l *Loader) LoadDir(ctx context.Context, dirs ...string) (*Series, error) {
	var paths []string
	series := &Series{}
	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if !strings.EqualFold(filepath.Ext(path), ".dcm") {
				series.Skipped++
				return nil
			}
			paths = append(paths, path)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(paths)

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		series.Total++
		s, err := l.LoadFile(path)
		if err != nil {
			series.Invalid++
			series.Errors = append(series.Errors, &SliceError{File: path, Err: err})
			l.logger.Warn("skipping unreadable file", zap.String("file", path), zap.Error(err))
			continue
		}
		if !s.IsCT() {
			series.NonCT++
			l.logger.Debug("skipping non-CT file", zap.String("file", path), zap.String("modality", s.Modality))
			continue
		}
		series.Slices = append(series.Slices, s)
	}

	l.logger.Info("series scanned",
		zap.Int("files", series.Total),
		zap.Int("ct", len(series.Slices)),
		zap.Int("invalid", series.Invalid),
		zap.Int("non_ct", series.NonCT),
		zap.Int("skipped", series.Skipped))
	return series, nil
}

// LoadFile parses a single DICOM file.
func (l *Loader) LoadFile(path string) (*models.CTSlice, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, err
	}
	return SliceFromDataset(&ds, path)
}
