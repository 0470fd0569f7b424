// Package config provides configuration loading and management for hnautoseg.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"hnautoseg/pkg/organ"
)

// Environment variables consulted by ApplyEnv
const (
	EnvMinIOAccessKey = "HNAUTOSEG_MINIO_ACCESS_KEY"
	EnvMinIOSecretKey = "HNAUTOSEG_MINIO_SECRET_KEY"
	EnvLoggingEnv     = "HNAUTOSEG_ENV"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// ImageSize is the edge length in pixels of the normalized CT grid
		ImageSize int `yaml:"imageSize"`

		// PixelSize is the target in-plane pixel spacing in mm
		PixelSize float64 `yaml:"pixelSize"`

		// HeightPrecision is the grid slice heights are rounded to, in mm
		HeightPrecision float64 `yaml:"heightPrecision"`

		// NumWorkers bounds how many organs are processed in parallel
		NumWorkers int `yaml:"numWorkers"`

		// InvalidFileTolerance is the fraction of unreadable files accepted per case
		InvalidFileTolerance float64 `yaml:"invalidFileTolerance"`

		// VoxelwiseSmoothing repairs single voxels between agreeing slices
		// instead of whole slices
		VoxelwiseSmoothing bool `yaml:"voxelwiseSmoothing"`

		// Organs lists the organs to contour; empty means all known organs
		Organs []string `yaml:"organs,omitempty"`
	} `yaml:"processing"`

	// Contour extraction parameters
	Contours struct {
		MinSliceVoxels   float64 `yaml:"minSliceVoxels"`
		MinContourPoints int     `yaml:"minContourPoints"`
		MinRegionPoints  int     `yaml:"minRegionPoints"`

		// Tracer selects the boundary tracer: "suzuki" or "opencv"
		Tracer string `yaml:"tracer"`
	} `yaml:"contours"`

	// Organs overrides built-in per-organ parameters, keyed by organ name
	Organs map[string]organ.Override `yaml:"organs,omitempty"`

	// Structure set header values
	StructureSet struct {
		UIDRoot         string `yaml:"uidRoot"`
		Label           string `yaml:"label"`
		Manufacturer    string `yaml:"manufacturer"`
		ModelName       string `yaml:"modelName"`
		SoftwareVersion string `yaml:"softwareVersion"`
	} `yaml:"structureSet"`

	// Prediction source
	Prediction struct {
		// Dir holds one .npy probability volume per organ
		Dir string `yaml:"dir"`
	} `yaml:"prediction"`

	// Metric parameters
	Metrics struct {
		PixelSize      float64 `yaml:"pixelSize"`
		SliceThickness float64 `yaml:"sliceThickness"`
		Percentile     float64 `yaml:"percentile"`
		SearchRadius   float64 `yaml:"searchRadius"`

		// Method is the nearest surface search: "box" or "kdtree"
		Method string `yaml:"method"`
	} `yaml:"metrics"`

	// Output parameters
	Output struct {
		Dir string `yaml:"dir"`

		// FilenamePattern accepts {case} and {uid}
		FilenamePattern string `yaml:"filenamePattern"`

		// Preview renders PNG overlays of every contoured slice
		Preview    bool   `yaml:"preview"`
		PreviewDir string `yaml:"previewDir"`

		MinIO struct {
			Enabled   bool   `yaml:"enabled"`
			Endpoint  string `yaml:"endpoint"`
			AccessKey string `yaml:"accessKey"`
			SecretKey string `yaml:"secretKey"`
			Bucket    string `yaml:"bucket"`
			Prefix    string `yaml:"prefix"`
			UseSSL    bool   `yaml:"useSSL"`
		} `yaml:"minio"`
	} `yaml:"output"`

	// Logging parameters
	Logging struct {
		// Env is "development" for human readable logs, anything else for JSON
		Env string `yaml:"env"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.ImageSize = 256
	cfg.Processing.PixelSize = 1.0
	cfg.Processing.HeightPrecision = 0.25
	cfg.Processing.NumWorkers = runtime.NumCPU()
	cfg.Processing.InvalidFileTolerance = 0.1

	cfg.Contours.MinSliceVoxels = 4
	cfg.Contours.MinContourPoints = 4
	cfg.Contours.MinRegionPoints = 3
	cfg.Contours.Tracer = "suzuki"

	cfg.StructureSet.UIDRoot = "1.2.246.352.221."
	cfg.StructureSet.Label = "DLC RTstruct"
	cfg.StructureSet.Manufacturer = "NA"
	cfg.StructureSet.ModelName = "NA"
	cfg.StructureSet.SoftwareVersion = "4.2.7.0"

	cfg.Prediction.Dir = "predictions"

	cfg.Metrics.PixelSize = 1.0
	cfg.Metrics.SliceThickness = 2.5
	cfg.Metrics.Percentile = 95
	cfg.Metrics.SearchRadius = 5
	cfg.Metrics.Method = "box"

	cfg.Output.Dir = "output"
	cfg.Output.FilenamePattern = "RS.{case}-CNN.dcm"
	cfg.Output.PreviewDir = "preview"
	cfg.Output.MinIO.Bucket = "rtstruct"

	cfg.Logging.Env = "production"

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// ApplyEnv overrides secrets and the logging environment from variables
// found by lookup, usually os.LookupEnv after a .env file was loaded.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvMinIOAccessKey); ok {
		c.Output.MinIO.AccessKey = v
	}
	if v, ok := lookup(EnvMinIOSecretKey); ok {
		c.Output.MinIO.SecretKey = v
	}
	if v, ok := lookup(EnvLoggingEnv); ok && v != "" {
		c.Logging.Env = v
	}
}

// Validate checks value ranges and organ names.
func (c *Config) Validate() error {
	var problems []string
	p := c.Processing
	if p.ImageSize <= 0 {
		problems = append(problems, "processing.imageSize must be positive")
	}
	if p.PixelSize <= 0 {
		problems = append(problems, "processing.pixelSize must be positive")
	}
	if p.HeightPrecision <= 0 {
		problems = append(problems, "processing.heightPrecision must be positive")
	}
	if p.InvalidFileTolerance < 0 || p.InvalidFileTolerance > 1 {
		problems = append(problems, "processing.invalidFileTolerance must be within [0,1]")
	}
	switch c.Contours.Tracer {
	case "", "suzuki", "opencv":
	default:
		problems = append(problems, fmt.Sprintf("contours.tracer %q is not suzuki or opencv", c.Contours.Tracer))
	}
	switch c.Metrics.Method {
	case "", "box", "kdtree":
	default:
		problems = append(problems, fmt.Sprintf("metrics.method %q is not box or kdtree", c.Metrics.Method))
	}
	if c.Metrics.Percentile < 0 || c.Metrics.Percentile > 100 {
		problems = append(problems, "metrics.percentile must be within [0,100]")
	}
	if c.Output.MinIO.Enabled && (c.Output.MinIO.Endpoint == "" || c.Output.MinIO.Bucket == "") {
		problems = append(problems, "output.minio needs an endpoint and a bucket")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}

	if _, err := c.OrganTable(); err != nil {
		return err
	}
	_, err := c.OrganKinds()
	return err
}

// OrganTable returns the organ parameters with the configured overrides.
func (c *Config) OrganTable() (*organ.Table, error) {
	return organ.WithOverrides(c.Organs)
}

// OrganKinds resolves Processing.Organs, defaulting to every known organ.
func (c *Config) OrganKinds() ([]organ.Kind, error) {
	if len(c.Processing.Organs) == 0 {
		return organ.All(), nil
	}
	kinds := make([]organ.Kind, 0, len(c.Processing.Organs))
	for _, name := range c.Processing.Organs {
		k, err := organ.Parse(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}
