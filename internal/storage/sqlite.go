// Package storage provides durable vector index backends.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"

	"github.com/hyperjump/snapseek/internal/config"
	"github.com/hyperjump/snapseek/internal/models"
	"github.com/hyperjump/snapseek/internal/vector"
)

// SQLiteIndex implements vector.Index on SQLite. Records live in the indexed_images
// table, whose UNIQUE(owner_id, source_path) constraint arbitrates concurrent inserts.
// Nearest-neighbor queries run against an HNSW graph rebuilt from the table at open.
type SQLiteIndex struct {
	db         *sql.DB
	dimensions int
	graph      *vector.Graph
}

// NewSQLiteIndex opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteIndex(dbPath string, dimensions int, hnsw config.HNSWConfig) (*SQLiteIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; readers share the graph instead of the connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &SQLiteIndex{db: db, dimensions: dimensions, graph: vector.NewGraph(hnsw.M, hnsw.EfSearch)}
	if err := s.loadGraph(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS indexed_images (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		source_path TEXT NOT NULL,
		embedding BLOB NOT NULL,
		dimensions INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE(owner_id, source_path)
	);

	CREATE INDEX IF NOT EXISTS idx_images_owner ON indexed_images(owner_id);
	`
	_, err := db.Exec(schema)
	return err
}

func (s *SQLiteIndex) loadGraph(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, owner_id, source_path, embedding, dimensions FROM indexed_images ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("failed to load embeddings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			seq         int64
			owner, path string
			blob        []byte
			dims        int
		)
		if err := rows.Scan(&seq, &owner, &path, &blob, &dims); err != nil {
			return fmt.Errorf("failed to scan embedding: %w", err)
		}
		if dims != s.dimensions {
			return fmt.Errorf("stored embedding for %s has %d dimensions, index expects %d", path, dims, s.dimensions)
		}
		s.graph.Add(uint64(seq), owner, path, vector.BytesToFloat32Slice(blob))
	}
	return rows.Err()
}

// FindByOwnerAndPath returns the record for the pair or vector.ErrNotFound.
func (s *SQLiteIndex) FindByOwnerAndPath(ctx context.Context, ownerID, sourcePath string) (*models.IndexedImage, error) {
	var img models.IndexedImage
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, source_path, embedding, created_at
		 FROM indexed_images WHERE owner_id = ? AND source_path = ?`, ownerID, sourcePath,
	).Scan(&img.ID, &img.OwnerID, &img.SourcePath, &blob, &img.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, vector.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vector.ErrUnavailable, err)
	}
	img.Embedding = vector.BytesToFloat32Slice(blob)
	return &img, nil
}

// Insert writes img. A second insert for the same pair fails with vector.ErrDuplicateKey.
func (s *SQLiteIndex) Insert(ctx context.Context, img *models.IndexedImage) error {
	if err := vector.CheckVector(img.Embedding, s.dimensions); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO indexed_images (id, owner_id, source_path, embedding, dimensions, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		img.ID, img.OwnerID, img.SourcePath, vector.Float32SliceToBytes(img.Embedding), len(img.Embedding), img.CreatedAt,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return vector.ErrDuplicateKey
		}
		return fmt.Errorf("%w: %w", vector.ErrUnavailable, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("%w: %w", vector.ErrUnavailable, err)
	}
	s.graph.Add(uint64(seq), img.OwnerID, img.SourcePath, img.Embedding)
	return nil
}

// NearestNeighbors returns up to q.Limit ranked hits from the HNSW graph.
func (s *SQLiteIndex) NearestNeighbors(ctx context.Context, q vector.Query) ([]*vector.Neighbor, error) {
	if err := vector.CheckVector(q.Vector, s.dimensions); err != nil {
		return nil, err
	}
	return s.graph.Search(q), nil
}

// Size returns the number of stored records.
func (s *SQLiteIndex) Size(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM indexed_images`).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: %w", vector.ErrUnavailable, err)
	}
	return count, nil
}

// Close closes the database connection.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}
