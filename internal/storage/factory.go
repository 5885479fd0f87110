package storage

import (
	"fmt"

	"github.com/hyperjump/snapseek/internal/config"
	"github.com/hyperjump/snapseek/internal/vector"
)

// Open returns the vector index selected by cfg.Backend. For the memory backend
// the snapshot at cfg.SnapshotPath is loaded when present; callers that want it
// persisted must type-assert to *vector.MemoryIndex and call Save on shutdown.
func Open(cfg config.StorageConfig, dimensions int) (vector.Index, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return NewSQLiteIndex(cfg.DatabasePath, dimensions, cfg.HNSW)
	case config.BackendBolt:
		return NewBoltIndex(cfg.BoltPath, dimensions, cfg.HNSW)
	case config.BackendMemory:
		idx, err := vector.NewMemoryIndex(dimensions)
		if err != nil {
			return nil, err
		}
		if err := idx.Load(cfg.SnapshotPath); err != nil {
			return nil, fmt.Errorf("failed to load snapshot: %w", err)
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

// Paths returns the on-disk files used by the configured backend.
func Paths(cfg config.StorageConfig) []string {
	switch cfg.Backend {
	case config.BackendSQLite:
		return []string{cfg.DatabasePath, cfg.DatabasePath + "-wal", cfg.DatabasePath + "-shm"}
	case config.BackendBolt:
		return []string{cfg.BoltPath}
	default:
		return []string{cfg.SnapshotPath}
	}
}
