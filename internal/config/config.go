// Package config provides configuration loading and structs for the ruiji server.
package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	rjerr "github.com/hyperjump/ruiji/pkg/errors"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Recommend RecommendConfig `yaml:"recommend"`
	Watch     WatchConfig     `yaml:"watch"`
}

// WatchConfig holds drop-directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
	DebounceMs  int      `yaml:"debounce_ms"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds where index artifacts and metadata live.
// DatabasePath is only used by the sqlite metadata backend and defaults to
// <data_dir>/metadata.db.
type StorageConfig struct {
	DataDir         string `yaml:"data_dir"`
	MetadataBackend string `yaml:"metadata_backend"`
	DatabasePath    string `yaml:"database_path,omitempty"`
	Compression     string `yaml:"compression"`
}

// IndexConfig selects the accelerated index.
type IndexConfig struct {
	Type string     `yaml:"type"`
	HNSW HNSWConfig `yaml:"hnsw"`
}

// HNSWConfig tunes the hnsw index.
type HNSWConfig struct {
	M              int    `yaml:"m"`
	EfConstruction int    `yaml:"ef_construction"`
	EfSearch       int    `yaml:"ef_search"`
	Seed           uint64 `yaml:"seed,omitempty"`
}

// EmbeddingConfig holds embedder settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// RecommendConfig holds recommendation request settings.
type RecommendConfig struct {
	DefaultK        int    `yaml:"default_k"`
	MaxK            int    `yaml:"max_k"`
	MinCandidates   int    `yaml:"min_candidates"`
	OverfetchFactor int    `yaml:"overfetch_factor"`
	CurrencySymbol  string `yaml:"currency_symbol"`
}

// Load reads and parses the config file at path, applies defaults, expands paths and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, rjerr.Wrap(err, rjerr.CodeConfigLoadReadFailure, "failed to read config", rjerr.Field("path", path))
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, rjerr.Wrap(err, rjerr.CodeConfigParseInvalidFormat, "failed to parse config", rjerr.Field("path", path))
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DataDir = expandPath(cfg.Storage.DataDir, configDir)
	if cfg.Storage.DatabasePath != "" {
		cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	}
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	checks := []struct {
		key     string
		value   string
		allowed []string
	}{
		{"storage.metadata_backend", c.Storage.MetadataBackend, []string{"file", "sqlite"}},
		{"storage.compression", c.Storage.Compression, []string{"none", "lz4", "zstd"}},
		{"index.type", c.Index.Type, []string{"flat", "hnsw", "faiss"}},
		{"embedding.provider", c.Embedding.Provider, []string{"hash", "onnx"}},
	}
	for _, ch := range checks {
		if !slices.Contains(ch.allowed, ch.value) {
			return rjerr.Errorf(rjerr.CodeConfigParseInvalidFormat,
				"%s: unsupported value %q (allowed: %s)", ch.key, ch.value, strings.Join(ch.allowed, ", "))
		}
	}
	if c.Recommend.DefaultK > c.Recommend.MaxK {
		return rjerr.Errorf(rjerr.CodeConfigParseInvalidFormat,
			"recommend.default_k (%d) exceeds recommend.max_k (%d)", c.Recommend.DefaultK, c.Recommend.MaxK)
	}
	return nil
}

// Save writes the config to path. Used for persisting watch directory add/remove.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return rjerr.Wrap(err, rjerr.CodeConfigParseInvalidFormat, "failed to marshal config")
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return rjerr.Wrap(err, rjerr.CodeConfigLoadReadFailure, "failed to write config", rjerr.Field("path", path))
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}

// Summary is the subset of settings reported by status.
func (c *Config) Summary() map[string]any {
	return map[string]any{
		"data_dir":             c.Storage.DataDir,
		"metadata_backend":     c.Storage.MetadataBackend,
		"compression":          c.Storage.Compression,
		"index_type":           c.Index.Type,
		"embedding_provider":   c.Embedding.Provider,
		"embedding_dimensions": c.Embedding.Dimensions,
		"default_k":            c.Recommend.DefaultK,
		"max_k":                c.Recommend.MaxK,
	}
}

// StoragePaths lists what counts toward disk usage: the data directory, plus the
// database when the sqlite backend keeps it elsewhere.
func (c *Config) StoragePaths() []string {
	paths := []string{c.Storage.DataDir}
	if c.Storage.MetadataBackend == "sqlite" && c.Storage.DatabasePath != "" {
		paths = append(paths, c.Storage.DatabasePath)
	}
	return paths
}
