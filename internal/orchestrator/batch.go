// Package orchestrator drives the client side of snapseek: bulk indexing of a
// photo collection and debounced search-as-you-type.
package orchestrator

import (
	"context"
	"fmt"
	"iter"

	"go.uber.org/zap"

	"github.com/hyperjump/snapseek/internal/models"
	"github.com/hyperjump/snapseek/pkg/utils"
)

// PhotoIndexer indexes one photo. *client.Client implements it.
type PhotoIndexer interface {
	IndexPhoto(ctx context.Context, ownerID string, photo models.Photo) (*models.IndexResult, error)
}

// ProgressKind identifies a batch progress event.
type ProgressKind int

const (
	// ProgressIndexing is emitted before each photo is sent.
	ProgressIndexing ProgressKind = iota
	// ProgressIndexed is emitted when a photo was stored or was already stored.
	ProgressIndexed
	// ProgressFailed is emitted when a photo could not be indexed. The batch continues.
	ProgressFailed
	// ProgressComplete is the final event of a run.
	ProgressComplete
)

func (k ProgressKind) String() string {
	switch k {
	case ProgressIndexing:
		return "indexing"
	case ProgressIndexed:
		return "indexed"
	case ProgressFailed:
		return "failed"
	case ProgressComplete:
		return "complete"
	default:
		return fmt.Sprintf("ProgressKind(%d)", int(k))
	}
}

// Progress is one event of a batch run. Index is 1-based and zero on the
// complete event.
type Progress struct {
	Kind           ProgressKind
	Index          int
	Total          int
	Photo          models.Photo
	Message        string
	AlreadyIndexed bool
	Succeeded      int
	Err            error
}

// BatchIndexer indexes a collection of photos one at a time.
type BatchIndexer struct {
	indexer PhotoIndexer
	logger  *zap.Logger
}

// BatchOption configures a BatchIndexer.
type BatchOption func(*BatchIndexer)

// WithBatchLogger sets the logger for failed photos.
func WithBatchLogger(l *zap.Logger) BatchOption {
	return func(b *BatchIndexer) { b.logger = l }
}

// NewBatchIndexer creates a batch indexer on top of idx.
func NewBatchIndexer(idx PhotoIndexer, opts ...BatchOption) *BatchIndexer {
	b := &BatchIndexer{indexer: idx}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = utils.OrNop(b.logger)
	return b
}

// IndexAll returns a sequence that indexes photos in order when ranged over.
// A failed photo does not stop the run. Already indexed photos count as
// succeeded. Each range is an independent run; breaking out of the range stops
// it, and a cancelled ctx ends it with a complete event carrying ctx.Err().
func (b *BatchIndexer) IndexAll(ctx context.Context, photos []models.Photo, ownerID string) iter.Seq[Progress] {
	return func(yield func(Progress) bool) {
		total := len(photos)
		succeeded := 0
		complete := func(err error) {
			yield(Progress{
				Kind:      ProgressComplete,
				Total:     total,
				Succeeded: succeeded,
				Message:   fmt.Sprintf("Indexing complete! %d photos processed.", succeeded),
				Err:       err,
			})
		}

		for i, photo := range photos {
			if err := ctx.Err(); err != nil {
				complete(err)
				return
			}
			n := i + 1
			if !yield(Progress{
				Kind:    ProgressIndexing,
				Index:   n,
				Total:   total,
				Photo:   photo,
				Message: fmt.Sprintf("Indexing %d of %d...", n, total),
			}) {
				return
			}

			result, err := b.indexer.IndexPhoto(ctx, ownerID, photo)
			if err != nil {
				b.logger.Warn("Failed to index photo", zap.String("path", photo.Path), zap.Error(err))
				if !yield(Progress{Kind: ProgressFailed, Index: n, Total: total, Photo: photo, Err: err}) {
					return
				}
				continue
			}
			succeeded++
			if !yield(Progress{Kind: ProgressIndexed, Index: n, Total: total, Photo: photo, AlreadyIndexed: result.AlreadyIndexed}) {
				return
			}
		}
		complete(nil)
	}
}
