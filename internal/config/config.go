// Package config provides configuration loading and structs for askpro.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Vector    VectorConfig    `yaml:"vector"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Watch     WatchConfig     `yaml:"watch"`
}

// StorageConfig holds paths for the index store and the file catalog.
type StorageConfig struct {
	IndexRoot    string `yaml:"index_root"`
	DatabasePath string `yaml:"database_path"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is one of "mock", "onnx", "openai".
	Provider  string `yaml:"provider"`
	ModelPath string `yaml:"model_path"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv  string `yaml:"api_key_env"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
	BatchSize  int    `yaml:"batch_size"`

	// RequestsPerSecond throttles the openai provider; zero means unlimited.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// APIKey returns the API key from the configured environment variable.
func (e *EmbeddingConfig) APIKey() string {
	if e.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(e.APIKeyEnv)
}

// ChunkingConfig holds chunk size and overlap, in characters.
type ChunkingConfig struct {
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	Separators   []string `yaml:"separators,omitempty"`
}

// VectorConfig selects the in-memory vector index for loaded artifacts.
type VectorConfig struct {
	IndexType string `yaml:"index_type"`
}

// RetrievalConfig holds query limits and fan-out parallelism.
type RetrievalConfig struct {
	DefaultK int `yaml:"default_k"`
	MaxK     int `yaml:"max_k"`
	Workers  int `yaml:"workers"`
}

// WatchConfig holds upload folder watch settings. Files are expected at
// <uploads_dir>/<user id>/<filename>.
type WatchConfig struct {
	Enabled    bool     `yaml:"enabled"`
	UploadsDir string   `yaml:"uploads_dir"`
	Extensions []string `yaml:"extensions"`
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.IndexRoot = expandPath(cfg.Storage.IndexRoot, configDir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	cfg.Watch.UploadsDir = expandPath(cfg.Watch.UploadsDir, configDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "mock", "onnx", "openai":
	default:
		return fmt.Errorf("invalid embedding.provider %q (supported: mock, onnx, openai)", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "onnx" && c.Embedding.ModelPath == "" {
		return fmt.Errorf("embedding.model_path is required for the onnx provider")
	}
	if c.Embedding.RequestsPerSecond < 0 {
		return fmt.Errorf("embedding.requests_per_second must not be negative")
	}
	switch c.Vector.IndexType {
	case "memory", "faiss":
	default:
		return fmt.Errorf("invalid vector.index_type %q (supported: memory, faiss)", c.Vector.IndexType)
	}
	if c.Retrieval.DefaultK > c.Retrieval.MaxK {
		return fmt.Errorf("retrieval.default_k (%d) exceeds retrieval.max_k (%d)", c.Retrieval.DefaultK, c.Retrieval.MaxK)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// "~/" paths and other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	path = strings.TrimPrefix(path, "~/")
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
