// Package embedding maps photos and text queries into a shared vector space.
package embedding

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when a provider fails, times out or returns no vector.
var ErrUnavailable = errors.New("embedding unavailable")

// Provider produces vector embeddings for text and images. Text and image
// vectors from the same provider have the same dimensionality and can be
// compared directly.
type Provider interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedImage(ctx context.Context, data []byte, mimeType string) ([]float32, error)
	Dimensions() int
	Name() string
	Close() error
}
