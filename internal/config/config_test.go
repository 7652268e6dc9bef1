package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default("/tmp/calepin")
	assert.Equal(t, CurrentVersion, cfg.Version)
	assert.Equal(t, "/tmp/calepin", cfg.DataDir)
	assert.Equal(t, 768, cfg.Embeddings.Dimensions)
	assert.Equal(t, 6, cfg.Index.NList)
	assert.Equal(t, 3, cfg.Index.NProbe)
	assert.True(t, cfg.Index.Normalize)
	assert.Equal(t, 10, cfg.Search.MaxResults)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "nope.yaml"), dir)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, "tarka150m", cfg.Embeddings.Model)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := Default(dir)
	cfg.Embeddings.Model = "custom-model"
	cfg.Index.NList = 12
	cfg.Index.NProbe = 4
	cfg.Workers.ScanInterval = 5 * time.Minute
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path, dir)
	require.NoError(t, err)
	assert.Equal(t, "custom-model", loaded.Embeddings.Model)
	assert.Equal(t, 12, loaded.Index.NList)
	assert.Equal(t, 4, loaded.Index.NProbe)
	assert.Equal(t, 5*time.Minute, loaded.Workers.ScanInterval)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("index:\n  nlist: 8\n  nprobe: 2\n"), 0o644))

	cfg, err := Load(path, dir)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Index.NList)
	assert.Equal(t, 2, cfg.Index.NProbe)
	// untouched sections retain defaults
	assert.Equal(t, 768, cfg.Embeddings.Dimensions)
	assert.Equal(t, 48, cfg.Search.SnippetWindow)
}

func TestLoadMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("index: [not a map"), 0o644))

	_, err := Load(path, dir)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"zero dimensions", func(c *Config) { c.Embeddings.Dimensions = 0 }, false},
		{"zero nlist", func(c *Config) { c.Index.NList = 0 }, false},
		{"nprobe above nlist", func(c *Config) { c.Index.NProbe = c.Index.NList + 1 }, false},
		{"zero nprobe", func(c *Config) { c.Index.NProbe = 0 }, false},
		{"zero cache size", func(c *Config) { c.Index.CacheSize = 0 }, false},
		{"zero max results", func(c *Config) { c.Search.MaxResults = 0 }, false},
		{"nprobe equals nlist", func(c *Config) { c.Index.NProbe = c.Index.NList }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(t.TempDir())
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestPaths(t *testing.T) {
	cfg := Default("/data")
	assert.Equal(t, filepath.Join("/data", "calepin.db"), cfg.DatabasePath())
	assert.Equal(t, filepath.Join("/data", "lexical.bleve"), cfg.LexicalIndexPath())
}
