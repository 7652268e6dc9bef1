// Package config loads and validates calepin configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// CurrentVersion is the current config schema version.
const CurrentVersion = 1

// Config represents the complete calepin configuration.
type Config struct {
	Version    int              `yaml:"version"`
	DataDir    string           `yaml:"data_dir"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Index      IndexConfig      `yaml:"index"`
	Search     SearchConfig     `yaml:"search"`
	Workers    WorkersConfig    `yaml:"workers"`
	Log        LogConfig        `yaml:"log"`
}

// EmbeddingsConfig configures the external embedding service.
type EmbeddingsConfig struct {
	// URL is the embedding endpoint (e.g., http://localhost:8999/embedding).
	URL string `yaml:"url"`
	// Model is the model identifier sent with each request.
	Model string `yaml:"model"`
	// Dimensions is the expected embedding dimension.
	Dimensions int `yaml:"dimensions"`
	// Timeout is the hard per-request timeout.
	Timeout time.Duration `yaml:"timeout"`
	// MaxRetries is the number of retry attempts for transient failures.
	MaxRetries int `yaml:"max_retries"`
}

// IndexConfig configures the per-notebook vector index.
type IndexConfig struct {
	// NList is the number of clusters in the content index.
	NList int `yaml:"nlist"`
	// NProbe is the number of clusters probed per search.
	NProbe int `yaml:"nprobe"`
	// Normalize enables L2 normalization of embeddings at insert and query time.
	Normalize bool `yaml:"normalize"`
	// CacheSize is the number of notebook indexes kept live in process memory.
	CacheSize int `yaml:"cache_size"`
}

// SearchConfig configures hybrid search behaviour.
type SearchConfig struct {
	// MaxResults is the default result list size (k).
	MaxResults int `yaml:"max_results"`
	// SnippetWindow is the number of characters of context around a match.
	SnippetWindow int `yaml:"snippet_window"`
}

// WorkersConfig configures the background workers.
type WorkersConfig struct {
	// ScanInterval is how often the dirty-note scanner runs.
	ScanInterval time.Duration `yaml:"scan_interval"`
	// QueueDepth is the buffer size of the chunk and rebuild queues.
	QueueDepth int `yaml:"queue_depth"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level     string `yaml:"level"`
	FilePath  string `yaml:"file_path"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files"`
}

// Default returns the default configuration rooted at dataDir.
func Default(dataDir string) *Config {
	return &Config{
		Version: CurrentVersion,
		DataDir: dataDir,
		Embeddings: EmbeddingsConfig{
			URL:        "http://localhost:8999/embedding",
			Model:      "tarka150m",
			Dimensions: 768,
			Timeout:    300 * time.Second,
			MaxRetries: 3,
		},
		Index: IndexConfig{
			NList:     6,
			NProbe:    3,
			Normalize: true,
			CacheSize: 4,
		},
		Search: SearchConfig{
			MaxResults:    10,
			SnippetWindow: 48,
		},
		Workers: WorkersConfig{
			ScanInterval: 10 * time.Minute,
			QueueDepth:   64,
		},
		Log: LogConfig{
			Level:     "info",
			FilePath:  filepath.Join(dataDir, "calepin.log"),
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// Load reads configuration from path, applying defaults for missing fields.
// A missing file is not an error; defaults are returned.
func Load(path string, dataDir string) (*Config, error) {
	cfg := Default(dataDir)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = dataDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	if c.Index.NList <= 0 {
		return fmt.Errorf("index.nlist must be positive, got %d", c.Index.NList)
	}
	if c.Index.NProbe <= 0 || c.Index.NProbe > c.Index.NList {
		return fmt.Errorf("index.nprobe must be in [1, nlist], got %d", c.Index.NProbe)
	}
	if c.Index.CacheSize <= 0 {
		return fmt.Errorf("index.cache_size must be positive, got %d", c.Index.CacheSize)
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search.max_results must be positive, got %d", c.Search.MaxResults)
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "calepin.db")
}

// LexicalIndexPath returns the bleve index location.
func (c *Config) LexicalIndexPath() string {
	return filepath.Join(c.DataDir, "lexical.bleve")
}
