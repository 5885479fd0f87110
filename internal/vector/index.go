// Package vector defines the vector index contract and an in-memory implementation.
package vector

import (
	"context"
	"errors"
	"sort"

	"github.com/hyperjump/snapseek/internal/models"
)

var (
	// ErrNotFound is returned by FindByOwnerAndPath when no record exists for the pair.
	ErrNotFound = errors.New("image not found")
	// ErrDuplicateKey is returned by Insert when a record for the pair already exists.
	ErrDuplicateKey = errors.New("duplicate owner and source path")
	// ErrUnavailable is returned when the backing store cannot be reached or read.
	ErrUnavailable = errors.New("index unavailable")
)

// Index stores IndexedImage records and answers nearest-neighbor queries over
// their embeddings. Implementations are safe for concurrent use and enforce
// uniqueness of (OwnerID, SourcePath) themselves.
type Index interface {
	FindByOwnerAndPath(ctx context.Context, ownerID, sourcePath string) (*models.IndexedImage, error)
	Insert(ctx context.Context, img *models.IndexedImage) error
	NearestNeighbors(ctx context.Context, q Query) ([]*Neighbor, error)
	Size(ctx context.Context) (int, error)
	Close() error
}

// Query is a nearest-neighbor request. CandidatePool is how many candidates
// the approximate search examines; at most Limit of them are returned.
type Query struct {
	Vector        []float32
	CandidatePool int
	Limit         int
	// OwnerID restricts results to one owner when set.
	OwnerID string
}

// Neighbor is one nearest-neighbor hit. Score is cosine similarity clamped to [0, 1].
type Neighbor struct {
	SourcePath string
	OwnerID    string
	Score      float64
	// Seq is the record's insertion sequence, used to break score ties.
	Seq uint64
}

// Rank orders neighbors by descending score, then by insertion order, and keeps
// at most limit of them. limit <= 0 keeps all.
func Rank(neighbors []*Neighbor, limit int) []*Neighbor {
	sort.SliceStable(neighbors, func(i, j int) bool {
		if neighbors[i].Score != neighbors[j].Score {
			return neighbors[i].Score > neighbors[j].Score
		}
		return neighbors[i].Seq < neighbors[j].Seq
	})
	if limit > 0 && len(neighbors) > limit {
		neighbors = neighbors[:limit]
	}
	return neighbors
}

// PoolSize returns the number of candidates to examine for q.
func (q Query) PoolSize() int {
	if q.CandidatePool < q.Limit {
		return q.Limit
	}
	return q.CandidatePool
}
