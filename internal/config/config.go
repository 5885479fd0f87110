// Package config provides configuration loading and structs for the snapseek server and client.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Client    ClientConfig    `yaml:"client"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StorageConfig selects the vector index backend and where it keeps its data.
type StorageConfig struct {
	// Backend is one of "sqlite", "bolt" or "memory".
	Backend      string `yaml:"backend"`
	DatabasePath string `yaml:"database_path"`
	BoltPath     string `yaml:"bolt_path"`
	// SnapshotPath is where the memory backend is loaded from and saved to on shutdown.
	// Empty disables persistence.
	SnapshotPath string `yaml:"snapshot_path"`
	HNSW         HNSWConfig `yaml:"hnsw"`
}

// HNSWConfig tunes the approximate nearest-neighbor graph used by durable backends.
type HNSWConfig struct {
	M        int `yaml:"m"`
	EfSearch int `yaml:"ef_search"`
}

// EmbeddingConfig holds embedding provider settings. It is passed explicitly to
// the provider constructor; nothing reads credentials from globals.
type EmbeddingConfig struct {
	// Provider is "vertex" or "mock".
	Provider        string        `yaml:"provider"`
	ProjectID       string        `yaml:"project_id"`
	Location        string        `yaml:"location"`
	Model           string        `yaml:"model"`
	Endpoint        string        `yaml:"endpoint"`
	CredentialsFile string        `yaml:"credentials_file"`
	Dimensions      int           `yaml:"dimensions"`
	Timeout         time.Duration `yaml:"timeout"`
	// RateLimit is the sustained number of provider calls per second; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// SearchConfig holds nearest-neighbor query settings.
type SearchConfig struct {
	CandidatePool int     `yaml:"candidate_pool"`
	ResultLimit   int     `yaml:"result_limit"`
	MinScore      float64 `yaml:"min_score"`
}

// ClientConfig holds settings for the CLI client that talks to a running server.
type ClientConfig struct {
	ServerURL    string        `yaml:"server_url"`
	OwnerID      string        `yaml:"owner_id"`
	Debounce     time.Duration `yaml:"debounce"`
	Timeout      time.Duration `yaml:"timeout"`
	Patterns     []string      `yaml:"patterns"`
	MaxPhotos    int           `yaml:"max_photos"`
	MaxDimension int           `yaml:"max_dimension"`
	JPEGQuality  int           `yaml:"jpeg_quality"`
}

// WatchConfig holds directory watch settings for the client.
type WatchConfig struct {
	Directories []string      `yaml:"directories"`
	Recursive   *bool         `yaml:"recursive"`
	Debounce    time.Duration `yaml:"debounce"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, applies environment overrides,
// expands paths, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyEnv(&cfg, os.Getenv)
	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BoltPath = expandPath(cfg.Storage.BoltPath, configDir)
	cfg.Storage.SnapshotPath = expandPath(cfg.Storage.SnapshotPath, configDir)
	cfg.Embedding.CredentialsFile = expandPath(cfg.Embedding.CredentialsFile, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config with every default applied, for when no file exists.
func Default() *Config {
	var cfg Config
	ApplyEnv(&cfg, os.Getenv)
	ApplyDefaults(&cfg)
	return &cfg
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnv overrides provider credentials and client identity from the environment.
// getenv is os.Getenv outside of tests.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("SNAPSEEK_EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := firstEnv(getenv, "SNAPSEEK_VERTEX_PROJECT", "GCLOUD_PROJECT_ID", "GOOGLE_CLOUD_PROJECT"); v != "" {
		cfg.Embedding.ProjectID = v
	}
	if v := firstEnv(getenv, "SNAPSEEK_VERTEX_LOCATION", "GCLOUD_LOCATION"); v != "" {
		cfg.Embedding.Location = v
	}
	if v := getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" && cfg.Embedding.CredentialsFile == "" {
		cfg.Embedding.CredentialsFile = v
	}
	if v := getenv("SNAPSEEK_SERVER_URL"); v != "" {
		cfg.Client.ServerURL = v
	}
	if v := getenv("SNAPSEEK_OWNER_ID"); v != "" {
		cfg.Client.OwnerID = v
	}
}

func firstEnv(getenv func(string) string, keys ...string) string {
	for _, k := range keys {
		if v := getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// Validate reports settings that would break search or indexing semantics.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendSQLite, BackendBolt, BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q (supported: sqlite, bolt, memory)", c.Storage.Backend)
	}
	switch c.Embedding.Provider {
	case ProviderVertex, ProviderMock:
	default:
		return fmt.Errorf("unknown embedding provider %q (supported: vertex, mock)", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Search.ResultLimit <= 0 {
		return fmt.Errorf("search.result_limit must be positive, got %d", c.Search.ResultLimit)
	}
	if c.Search.CandidatePool <= c.Search.ResultLimit {
		return fmt.Errorf("search.candidate_pool (%d) must be larger than search.result_limit (%d)",
			c.Search.CandidatePool, c.Search.ResultLimit)
	}
	if c.Search.MinScore < 0 || c.Search.MinScore > 1 {
		return fmt.Errorf("search.min_score must be within [0, 1], got %v", c.Search.MinScore)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
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
