package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hnautoseg/pkg/organ"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
processing:
  imageSize: 128
  organs: [Brain, "Parotid L"]
organs:
  Brain:
    threshold: 0.5
  ParotidL:
    maxSlices: 20
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.Processing.ImageSize)
	assert.Equal(t, 0.25, cfg.Processing.HeightPrecision)
	require.NoError(t, cfg.Validate())

	kinds, err := cfg.OrganKinds()
	require.NoError(t, err)
	assert.Equal(t, []organ.Kind{organ.Brain, organ.ParotidL}, kinds)

	table, err := cfg.OrganTable()
	require.NoError(t, err)
	assert.Equal(t, 0.5, table.Get(organ.Brain).Threshold)
	assert.Equal(t, 20, table.Get(organ.ParotidL).MaxSlices)
	assert.Equal(t, 33, table.Get(organ.ParotidR).MaxSlices)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("processing: [1, 2"), 0644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Processing.ImageSize = 0
	cfg.Metrics.Method = "grid"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.Organs = map[string]organ.Override{"Liver": {}}
	assert.ErrorIs(t, cfg.Validate(), organ.ErrUnknownROI)

	cfg = DefaultConfig()
	cfg.Processing.Organs = []string{"Spleen"}
	assert.ErrorIs(t, cfg.Validate(), organ.ErrUnknownROI)

	cfg = DefaultConfig()
	cfg.Output.MinIO.Enabled = true
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvMinIOAccessKey: "ak",
		EnvMinIOSecretKey: "sk",
		EnvLoggingEnv:     "development",
	}
	cfg := DefaultConfig()
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	assert.Equal(t, "ak", cfg.Output.MinIO.AccessKey)
	assert.Equal(t, "sk", cfg.Output.MinIO.SecretKey)
	assert.Equal(t, "development", cfg.Logging.Env)
}
