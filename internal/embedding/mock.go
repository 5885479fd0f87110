package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"

	"github.com/hyperjump/snapseek/pkg/utils"
)

// MockProvider is a deterministic provider for development and tests. It returns a
// fixed-dimension vector derived from a hash of the input so the same text or image
// always gets the same embedding. Vectors can be pinned per input with Set.
type MockProvider struct {
	dimensions int

	mu     sync.Mutex
	pinned map[string][]float32
	fail   error
	calls  int
}

// NewMockProvider returns a provider that produces deterministic embeddings of the given dimensions.
func NewMockProvider(dimensions int) *MockProvider {
	if dimensions <= 0 {
		dimensions = 1408
	}
	return &MockProvider{dimensions: dimensions, pinned: make(map[string][]float32)}
}

// Set pins the vector returned for a text or for image bytes.
func (m *MockProvider) Set(input string, vec []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pinned[input] = vec
}

// FailWith makes every following call return err. Pass nil to recover.
func (m *MockProvider) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// Calls returns how many embed calls the provider has served, failed ones included.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// EmbedText returns a deterministic embedding for text.
func (m *MockProvider) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return m.embed(ctx, text)
}

// EmbedImage returns a deterministic embedding for the image bytes. The MIME type is ignored.
func (m *MockProvider) EmbedImage(ctx context.Context, data []byte, mimeType string) ([]float32, error) {
	return m.embed(ctx, string(data))
}

func (m *MockProvider) embed(ctx context.Context, input string) ([]float32, error) {
	m.mu.Lock()
	m.calls++
	fail := m.fail
	pinned, ok := m.pinned[input]
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fail != nil {
		return nil, fail
	}
	if ok {
		out := make([]float32, len(pinned))
		copy(out, pinned)
		return out, nil
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(input))
	seed := float64(h.Sum64()%100000) + 1
	emb := make([]float32, m.dimensions)
	for i := range emb {
		emb[i] = float32(math.Sin(seed*float64(i+1))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// Dimensions returns the embedding dimension.
func (m *MockProvider) Dimensions() int {
	return m.dimensions
}

// Name returns the provider name.
func (m *MockProvider) Name() string {
	return fmt.Sprintf("mock-%d", m.dimensions)
}

// Close is a no-op for MockProvider.
func (m *MockProvider) Close() error {
	return nil
}
