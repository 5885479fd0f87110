package config

import "time"

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

// Embedding providers.
const (
	ProviderVertex = "vertex"
	ProviderMock   = "mock"
)

// Search defaults. The candidate pool is larger than the result limit to improve
// recall of the approximate search; the score threshold drops the neighbors an
// ANN query always returns even when nothing is relevant.
const (
	DefaultCandidatePool = 100
	DefaultResultLimit   = 10
	DefaultMinScore      = 0.52
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5001
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 10 << 20
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendSQLite
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/snapseek/data/images.db"
	}
	if cfg.Storage.BoltPath == "" {
		cfg.Storage.BoltPath = "/usr/local/var/snapseek/data/images.bolt"
	}
	if cfg.Storage.HNSW.M == 0 {
		cfg.Storage.HNSW.M = 16
	}
	if cfg.Storage.HNSW.EfSearch == 0 {
		cfg.Storage.HNSW.EfSearch = DefaultCandidatePool
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderVertex
	}
	if cfg.Embedding.Location == "" {
		cfg.Embedding.Location = "us-central1"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "multimodalembedding@001"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1408
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Embedding.RateLimit > 0 && cfg.Embedding.Burst == 0 {
		cfg.Embedding.Burst = 1
	}
	if cfg.Search.CandidatePool == 0 {
		cfg.Search.CandidatePool = DefaultCandidatePool
	}
	if cfg.Search.ResultLimit == 0 {
		cfg.Search.ResultLimit = DefaultResultLimit
	}
	if cfg.Search.MinScore == 0 {
		cfg.Search.MinScore = DefaultMinScore
	}
	if cfg.Client.ServerURL == "" {
		cfg.Client.ServerURL = "http://localhost:5001"
	}
	if cfg.Client.OwnerID == "" {
		cfg.Client.OwnerID = "user123"
	}
	if cfg.Client.Debounce == 0 {
		cfg.Client.Debounce = 500 * time.Millisecond
	}
	if cfg.Client.Timeout == 0 {
		cfg.Client.Timeout = 60 * time.Second
	}
	if cfg.Client.Patterns == nil {
		cfg.Client.Patterns = []string{"**/*.{jpg,jpeg,png,webp,gif}"}
	}
	if cfg.Client.MaxDimension == 0 {
		cfg.Client.MaxDimension = 512
	}
	if cfg.Client.JPEGQuality == 0 {
		cfg.Client.JPEGQuality = 70
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 400 * time.Millisecond
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
