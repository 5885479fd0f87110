// Package search answers free-text queries against the photo vector index.
package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/snapseek/internal/config"
	"github.com/hyperjump/snapseek/internal/embedding"
	"github.com/hyperjump/snapseek/internal/models"
	"github.com/hyperjump/snapseek/internal/vector"
	"github.com/hyperjump/snapseek/pkg/utils"
)

// Engine embeds query text and ranks nearest photos by cosine similarity.
// Every call re-embeds and re-queries; nothing is cached.
type Engine struct {
	provider embedding.Provider
	index    vector.Index
	config   config.SearchConfig
	logger   *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger for the engine.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a search engine with the given dependencies.
// Zero values in cfg fall back to the package defaults.
func NewEngine(provider embedding.Provider, index vector.Index, cfg config.SearchConfig, opts ...EngineOption) *Engine {
	if cfg.CandidatePool <= 0 {
		cfg.CandidatePool = config.DefaultCandidatePool
	}
	if cfg.ResultLimit <= 0 {
		cfg.ResultLimit = config.DefaultResultLimit
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = config.DefaultMinScore
	}
	e := &Engine{provider: provider, index: index, config: cfg}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = utils.OrNop(e.logger)
	return e
}

// Search returns photos whose similarity to the query is at least the configured
// minimum score, highest first.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := query.Validate(e.config.ResultLimit); err != nil {
		return nil, err
	}

	vec, err := e.provider.EmbedText(ctx, query.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("failed to embed query: %w", embedding.ErrUnavailable)
	}

	neighbors, err := e.index.NearestNeighbors(ctx, vector.Query{
		Vector:        vec,
		CandidatePool: e.config.CandidatePool,
		Limit:         query.Limit,
		OwnerID:       query.OwnerID,
	})
	if err != nil {
		return nil, fmt.Errorf("nearest neighbor search failed: %w", err)
	}

	results := Filter(neighbors, e.config.MinScore)
	e.logger.Debug("Search complete",
		zap.String("query", query.Query),
		zap.Int("candidates", len(neighbors)),
		zap.Int("results", len(results)))

	return &models.SearchResponse{
		Results:   results,
		Total:     len(results),
		QueryTime: time.Since(startTime).Milliseconds(),
		Query:     query.Query,
	}, nil
}

// Filter drops neighbors scoring below minScore and returns the rest as ranked
// results, highest score first with ties in insertion order.
func Filter(neighbors []*vector.Neighbor, minScore float64) []*models.SearchResult {
	kept := make([]*vector.Neighbor, 0, len(neighbors))
	for _, n := range neighbors {
		if n.Score >= minScore {
			kept = append(kept, n)
		}
	}
	kept = vector.Rank(kept, 0)

	results := make([]*models.SearchResult, len(kept))
	for i, n := range kept {
		results[i] = &models.SearchResult{
			SourcePath: n.SourcePath,
			OwnerID:    n.OwnerID,
			Score:      n.Score,
			Rank:       i + 1,
		}
	}
	return results
}
