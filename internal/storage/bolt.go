package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/hyperjump/snapseek/internal/config"
	"github.com/hyperjump/snapseek/internal/models"
	"github.com/hyperjump/snapseek/internal/vector"
)

var bucketImages = []byte("images")

// BoltIndex implements vector.Index on a bbolt file. Records are keyed by
// owner and path, so the single-writer Update transaction enforces uniqueness.
type BoltIndex struct {
	db         *bbolt.DB
	dimensions int
	graph      *vector.Graph
}

type boltRecord struct {
	Seq        uint64    `json:"seq"`
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	SourcePath string    `json:"source_path"`
	Embedding  []float32 `json:"embedding"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewBoltIndex opens or creates the bbolt file at path.
func NewBoltIndex(path string, dimensions int, hnsw config.HNSWConfig) (*BoltIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketImages); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketImages, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &BoltIndex{db: db, dimensions: dimensions, graph: vector.NewGraph(hnsw.M, hnsw.EfSearch)}
	if err := s.loadGraph(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *BoltIndex) loadGraph() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketImages).ForEach(func(k, v []byte) error {
			var rec boltRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to decode record %q: %w", k, err)
			}
			if len(rec.Embedding) != s.dimensions {
				return fmt.Errorf("stored embedding for %s has %d dimensions, index expects %d",
					rec.SourcePath, len(rec.Embedding), s.dimensions)
			}
			s.graph.Add(rec.Seq, rec.OwnerID, rec.SourcePath, rec.Embedding)
			return nil
		})
	})
}

// FindByOwnerAndPath returns the record for the pair or vector.ErrNotFound.
func (s *BoltIndex) FindByOwnerAndPath(ctx context.Context, ownerID, sourcePath string) (*models.IndexedImage, error) {
	var rec *boltRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketImages).Get([]byte(vector.Key(ownerID, sourcePath)))
		if data == nil {
			return nil
		}
		rec = &boltRecord{}
		return json.Unmarshal(data, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vector.ErrUnavailable, err)
	}
	if rec == nil {
		return nil, vector.ErrNotFound
	}
	return &models.IndexedImage{
		ID:         rec.ID,
		OwnerID:    rec.OwnerID,
		SourcePath: rec.SourcePath,
		Embedding:  rec.Embedding,
		CreatedAt:  rec.CreatedAt,
	}, nil
}

// Insert writes img. A second insert for the same pair fails with vector.ErrDuplicateKey.
func (s *BoltIndex) Insert(ctx context.Context, img *models.IndexedImage) error {
	if err := vector.CheckVector(img.Embedding, s.dimensions); err != nil {
		return err
	}
	key := []byte(vector.Key(img.OwnerID, img.SourcePath))
	var seq uint64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketImages)
		if b.Get(key) != nil {
			return vector.ErrDuplicateKey
		}
		var err error
		if seq, err = b.NextSequence(); err != nil {
			return err
		}
		data, err := json.Marshal(boltRecord{
			Seq:        seq,
			ID:         img.ID,
			OwnerID:    img.OwnerID,
			SourcePath: img.SourcePath,
			Embedding:  img.Embedding,
			CreatedAt:  img.CreatedAt,
		})
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
	if errors.Is(err, vector.ErrDuplicateKey) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %w", vector.ErrUnavailable, err)
	}
	s.graph.Add(seq, img.OwnerID, img.SourcePath, img.Embedding)
	return nil
}

// NearestNeighbors returns up to q.Limit ranked hits from the HNSW graph.
func (s *BoltIndex) NearestNeighbors(ctx context.Context, q vector.Query) ([]*vector.Neighbor, error) {
	if err := vector.CheckVector(q.Vector, s.dimensions); err != nil {
		return nil, err
	}
	return s.graph.Search(q), nil
}

// Size returns the number of stored records.
func (s *BoltIndex) Size(ctx context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketImages).Stats().KeyN
		return nil
	})
	return n, err
}

// Close closes the bolt file.
func (s *BoltIndex) Close() error {
	return s.db.Close()
}
