// Package config holds the engine configuration: recognized options, their
// defaults, file loading and startup validation.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults for tunable options.
const (
	DefaultThreads             = 4
	DefaultCommitBatchSize     = 1024
	DefaultDatabasePath        = "vidupe.db"
	DefaultSimilarityThreshold = 0.25
	DefaultSampleFrames        = 16
)

// Config carries every option the engine recognizes. Parsing (flags, files)
// happens outside the engine; the engine only ever sees a validated Config.
type Config struct {
	// Path is the scan root. Empty skips scanning (report-only runs).
	Path string `yaml:"path"`
	// DatabasePath locates the fingerprint store file.
	DatabasePath string `yaml:"database"`
	// Threads is the worker pool size. 1 degenerates to sequential hashing.
	Threads int `yaml:"threads"`
	// CommitBatchSize is the store flush granularity: larger batches mean
	// fewer commits but a bigger window of rehash work after a crash.
	CommitBatchSize int `yaml:"commit_batchsize"`
	// VideoHash enables perceptual fingerprinting of video files.
	VideoHash bool `yaml:"videohash"`
	// ResetDatabase discards all persisted fingerprints before scanning.
	ResetDatabase bool `yaml:"reset_database"`
	// CleanUnfound prunes store entries whose files are no longer on disk.
	CleanUnfound bool `yaml:"clean_unfound"`
	// SimilarityThreshold is the windowed mean per-frame distance below
	// which two perceptual fingerprints count as near-duplicates (0..1).
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	// SampleFrames is the number of evenly spaced frames hashed per video.
	SampleFrames int `yaml:"sample_frames"`
}

// Default returns a Config populated with default values.
func Default() Config {
	return Config{
		DatabasePath:        DefaultDatabasePath,
		Threads:             DefaultThreads,
		CommitBatchSize:     DefaultCommitBatchSize,
		SimilarityThreshold: DefaultSimilarityThreshold,
		SampleFrames:        DefaultSampleFrames,
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks option combinations. Validation errors are fatal at
// startup and never reached mid-scan.
func (c Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.Threads < 1 {
		return fmt.Errorf("threads must be >= 1, got %d", c.Threads)
	}
	if c.CommitBatchSize < 1 {
		return fmt.Errorf("commit_batchsize must be >= 1, got %d", c.CommitBatchSize)
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold >= 1 {
		return fmt.Errorf("similarity_threshold must be in (0, 1), got %g", c.SimilarityThreshold)
	}
	if c.SampleFrames < 2 {
		return fmt.Errorf("sample_frames must be >= 2, got %d", c.SampleFrames)
	}
	if c.ResetDatabase && c.CleanUnfound {
		// A reset store has nothing to prune; flag the contradiction early.
		return fmt.Errorf("reset_database and clean_unfound are mutually exclusive")
	}
	return nil
}
