package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	s := NewFileStore(dir, nil)

	path, err := s.Save(context.Background(), "RS.case1-CNN.dcm", []byte("DICM"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "RS.case1-CNN.dcm"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "DICM", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestFileStoreOverwrites(t *testing.T) {
	s := NewFileStore(t.TempDir(), nil)
	_, err := s.Save(context.Background(), "a.dcm", []byte("one"))
	require.NoError(t, err)
	path, err := s.Save(context.Background(), "a.dcm", []byte("two"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestFileStoreRejectsPaths(t *testing.T) {
	s := NewFileStore(t.TempDir(), nil)
	for _, name := range []string{"", "../escape.dcm", "sub/dir.dcm"} {
		_, err := s.Save(context.Background(), name, []byte("x"))
		assert.Error(t, err, name)
	}
}

func TestFileStoreCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFileStore(t.TempDir(), nil).Save(ctx, "a.dcm", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMinIOObjectName(t *testing.T) {
	s, err := NewMinIOStore(MinIOConfig{Endpoint: "localhost:9000", Bucket: "rtstruct"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "RS.x.dcm", s.ObjectName("RS.x.dcm"))

	s = NewMinIOStoreWithClient(nil, "rtstruct", "cases/2024", nil)
	assert.Equal(t, "cases/2024/RS.x.dcm", s.ObjectName("RS.x.dcm"))
}
