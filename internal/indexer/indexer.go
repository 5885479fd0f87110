// Package indexer writes photo embeddings into the vector index, at most once per owner and path.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/snapseek/internal/embedding"
	"github.com/hyperjump/snapseek/internal/models"
	"github.com/hyperjump/snapseek/internal/vector"
	"github.com/hyperjump/snapseek/pkg/utils"
)

// Indexer embeds photos and stores them in a vector index.
type Indexer struct {
	provider embedding.Provider
	index    vector.Index
	now      func() time.Time
	logger   *zap.Logger // optional; when set, logs debug events
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for indexing events.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithClock sets the time source for CreatedAt.
func WithClock(now func() time.Time) IndexerOption {
	return func(idx *Indexer) { idx.now = now }
}

// NewIndexer creates an indexer with the given dependencies.
func NewIndexer(provider embedding.Provider, index vector.Index, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		provider: provider,
		index:    index,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = utils.OrNop(idx.logger)
	return idx
}

// IndexPhoto stores the embedding of req.Image for (req.OwnerID, req.SourcePath).
// If the pair is already indexed the provider is not called and the result has
// AlreadyIndexed set. Losing an insert race to a concurrent writer is reported the
// same way. Failures are not retried.
func (idx *Indexer) IndexPhoto(ctx context.Context, req *models.IndexRequest) (*models.IndexResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	existing, err := idx.index.FindByOwnerAndPath(ctx, req.OwnerID, req.SourcePath)
	switch {
	case err == nil:
		idx.logger.Debug("Photo already indexed",
			zap.String("owner_id", req.OwnerID),
			zap.String("source_path", req.SourcePath))
		return &models.IndexResult{AlreadyIndexed: true, ID: existing.ID}, nil
	case !errors.Is(err, vector.ErrNotFound):
		return nil, fmt.Errorf("failed to look up photo: %w", err)
	}

	vec, err := idx.provider.EmbedImage(ctx, req.Image, req.MimeType)
	if err != nil {
		return nil, fmt.Errorf("failed to embed photo: %w", err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("failed to embed photo: %w", embedding.ErrUnavailable)
	}

	img := &models.IndexedImage{
		ID:         uuid.New().String(),
		OwnerID:    req.OwnerID,
		SourcePath: req.SourcePath,
		Embedding:  vec,
		CreatedAt:  idx.now().UTC(),
	}
	if err := idx.index.Insert(ctx, img); err != nil {
		if errors.Is(err, vector.ErrDuplicateKey) {
			idx.logger.Debug("Photo indexed concurrently",
				zap.String("owner_id", req.OwnerID),
				zap.String("source_path", req.SourcePath))
			return &models.IndexResult{AlreadyIndexed: true}, nil
		}
		return nil, fmt.Errorf("failed to store photo: %w", err)
	}

	idx.logger.Info("Photo indexed",
		zap.String("id", img.ID),
		zap.String("owner_id", img.OwnerID),
		zap.String("source_path", img.SourcePath),
		zap.Int("dimensions", len(vec)))
	return &models.IndexResult{ID: img.ID}, nil
}
