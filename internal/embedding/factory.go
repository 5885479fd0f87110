package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/snapseek/internal/config"
)

// NewProvider returns the provider selected by cfg.Provider, wrapped in a Guard
// configured from cfg.
func NewProvider(ctx context.Context, cfg config.EmbeddingConfig, logger *zap.Logger) (*Guard, error) {
	var inner Provider
	switch cfg.Provider {
	case config.ProviderMock:
		inner = NewMockProvider(cfg.Dimensions)
	case config.ProviderVertex:
		p, err := NewVertexProvider(ctx, cfg, WithVertexLogger(logger))
		if err != nil {
			return nil, err
		}
		inner = p
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
	return NewGuard(inner,
		WithTimeout(cfg.Timeout),
		WithRateLimit(cfg.RateLimit, cfg.Burst),
		WithLogger(logger),
	), nil
}
