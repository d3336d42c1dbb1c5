package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// MediaPath is the root directory to browse for media files
	MediaPath string `yaml:"media_path" json:"media_path"`

	// FFprobePath is the path to ffprobe binary (default: "ffprobe")
	FFprobePath string `yaml:"ffprobe_path" json:"ffprobe_path"`

	// Workers is the number of concurrent analysis jobs (default 2)
	Workers int `yaml:"workers" json:"workers"`

	// LogLevel is one of debug, info, warn, error (default "info")
	LogLevel string `yaml:"log_level" json:"log_level"`

	// LogFormat is "text" or "json" (default "text")
	LogFormat string `yaml:"log_format" json:"log_format"`

	// SampleStride is the pixel sampling step for image statistics (default 4)
	SampleStride int `yaml:"sample_stride" json:"sample_stride"`

	// MaxAnalysisDimension bounds the working copy of an image (default 1024)
	MaxAnalysisDimension int `yaml:"max_analysis_dimension" json:"max_analysis_dimension"`

	// MaxImagePixels rejects images larger than this before decoding (default 100 MP)
	MaxImagePixels int `yaml:"max_image_pixels" json:"max_image_pixels"`

	// FallbackScore is reported when a file cannot be decoded or probed (default 50)
	FallbackScore int `yaml:"fallback_score" json:"fallback_score"`

	// CacheEnabled turns on the persistent score cache
	CacheEnabled bool `yaml:"cache_enabled" json:"cache_enabled"`

	// CachePath is the badger directory for the score cache
	// If empty, defaults to a "cache" directory next to the config file
	CachePath string `yaml:"cache_path" json:"cache_path"`

	// CacheTTL is how long a cached score stays valid (default 168h)
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`

	// HistoryRetentionDays drops history rows older than this on startup; 0 keeps everything
	HistoryRetentionDays int `yaml:"history_retention_days" json:"history_retention_days"`

	// Username is stamped on every history row
	Username string `yaml:"username" json:"username"`
}

// Defaults applied by DefaultConfig and Load.
const (
	DefaultWorkers              = 2
	DefaultSampleStride         = 4
	DefaultMaxAnalysisDimension = 1024
	DefaultMaxImagePixels       = 100_000_000
	DefaultFallbackScore        = 50
	DefaultCacheTTL             = 7 * 24 * time.Hour

	// MaxWorkers matches the worker pool's upper bound.
	MaxWorkers = 16
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MediaPath:            "/media",
		FFprobePath:          "ffprobe",
		Workers:              DefaultWorkers,
		LogLevel:             "info",
		LogFormat:            DefaultLogFormat,
		SampleStride:         DefaultSampleStride,
		MaxAnalysisDimension: DefaultMaxAnalysisDimension,
		MaxImagePixels:       DefaultMaxImagePixels,
		FallbackScore:        DefaultFallbackScore,
		CacheEnabled:         true,
		CacheTTL:             DefaultCacheTTL,
		Username:             "local",
	}
}

// Load reads config from a YAML file, applying defaults for missing values
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file - use defaults
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults replaces empty or out-of-range values with defaults.
func (c *Config) applyDefaults() {
	if c.FFprobePath == "" {
		c.FFprobePath = "ffprobe"
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.LogFormat = ValidateLogFormat(c.LogFormat)
	if c.SampleStride < 1 {
		c.SampleStride = DefaultSampleStride
	}
	if c.MaxAnalysisDimension < 0 {
		c.MaxAnalysisDimension = DefaultMaxAnalysisDimension
	}
	if c.MaxImagePixels <= 0 {
		c.MaxImagePixels = DefaultMaxImagePixels
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.HistoryRetentionDays < 0 {
		c.HistoryRetentionDays = 0
	}
}

// Validate reports settings that cannot be defaulted away.
func (c *Config) Validate() error {
	if c.MediaPath == "" {
		return fmt.Errorf("%w: media_path is required", ErrInvalidConfig)
	}
	if c.Workers < 1 || c.Workers > MaxWorkers {
		return fmt.Errorf("%w: workers must be between 1 and %d, got %d", ErrInvalidConfig, MaxWorkers, c.Workers)
	}
	if c.FallbackScore < 0 || c.FallbackScore > 100 {
		return fmt.Errorf("%w: fallback_score must be between 0 and 100, got %d", ErrInvalidConfig, c.FallbackScore)
	}
	if !IsValidLogFormat(c.LogFormat) {
		return fmt.Errorf("%w: unknown log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	return nil
}

// Save writes the config to a YAML file
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetCacheDir returns the directory for the score cache
// If CachePath is set, returns that; otherwise a "cache" directory beside configPath
func (c *Config) GetCacheDir(configPath string) string {
	if c.CachePath != "" {
		return c.CachePath
	}
	return filepath.Join(filepath.Dir(configPath), "cache")
}
