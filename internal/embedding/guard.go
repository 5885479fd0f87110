package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/snapseek/pkg/utils"
)

// Guard wraps a Provider with a bounded wait per call, optional rate limiting and
// result validation. Every failure it returns wraps ErrUnavailable.
type Guard struct {
	inner   Provider
	timeout time.Duration
	limiter *rate.Limiter
	logger  *zap.Logger
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithTimeout bounds each provider call. Zero means no bound beyond the caller's context.
func WithTimeout(d time.Duration) GuardOption {
	return func(g *Guard) {
		g.timeout = d
	}
}

// WithRateLimit limits provider calls to perSecond with the given burst. perSecond <= 0 disables limiting.
func WithRateLimit(perSecond float64, burst int) GuardOption {
	return func(g *Guard) {
		if perSecond <= 0 {
			g.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLogger sets the logger for the guard.
func WithLogger(l *zap.Logger) GuardOption {
	return func(g *Guard) {
		g.logger = l
	}
}

// NewGuard wraps inner.
func NewGuard(inner Provider, opts ...GuardOption) *Guard {
	g := &Guard{inner: inner}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = utils.OrNop(g.logger)
	return g
}

// EmbedText embeds text through the wrapped provider.
func (g *Guard) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return g.call(ctx, "text", func(ctx context.Context) ([]float32, error) {
		return g.inner.EmbedText(ctx, text)
	})
}

// EmbedImage embeds image bytes through the wrapped provider.
func (g *Guard) EmbedImage(ctx context.Context, data []byte, mimeType string) ([]float32, error) {
	return g.call(ctx, "image", func(ctx context.Context) ([]float32, error) {
		return g.inner.EmbedImage(ctx, data, mimeType)
	})
}

func (g *Guard) call(ctx context.Context, kind string, fn func(context.Context) ([]float32, error)) ([]float32, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, unavailable(err)
		}
	}

	start := time.Now()
	vec, err := fn(ctx)
	if err != nil {
		g.logger.Warn("Embedding call failed",
			zap.String("kind", kind),
			zap.String("provider", g.inner.Name()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, unavailable(err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: provider returned no vector", ErrUnavailable)
	}
	if want := g.inner.Dimensions(); want > 0 && len(vec) != want {
		return nil, fmt.Errorf("%w: provider returned %d dimensions, expected %d", ErrUnavailable, len(vec), want)
	}
	g.logger.Debug("Embedded",
		zap.String("kind", kind),
		zap.Int("dimensions", len(vec)),
		zap.Duration("elapsed", time.Since(start)))
	return vec, nil
}

func unavailable(err error) error {
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// Dimensions returns the wrapped provider's dimension.
func (g *Guard) Dimensions() int {
	return g.inner.Dimensions()
}

// Name returns the wrapped provider's name.
func (g *Guard) Name() string {
	return g.inner.Name()
}

// Close closes the wrapped provider.
func (g *Guard) Close() error {
	return g.inner.Close()
}
