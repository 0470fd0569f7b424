// Package storage persists finished structure sets.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// ContentTypeDICOM is the media type of Part 10 files.
const ContentTypeDICOM = "application/dicom"

// Store saves a complete document under name and returns where it went.
type Store interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// FileStore writes documents into a local directory. Files appear
// atomically: data goes to a temporary file that is renamed on success.
type FileStore struct {
	Dir    string
	logger *zap.Logger
}

// NewFileStore returns a store rooted at dir.
func NewFileStore(dir string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{Dir: dir, logger: logger}
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.Dir, "."+name+".*.tmp")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	path := filepath.Join(s.Dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}
	s.logger.Info("structure set written",
		zap.String("path", path),
		zap.String("size", humanize.Bytes(uint64(len(data)))))
	return path, nil
}
