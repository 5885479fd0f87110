package benchmark

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/hyperjump/snapseek/internal/config"
	"github.com/hyperjump/snapseek/internal/embedding"
	"github.com/hyperjump/snapseek/internal/models"
	"github.com/hyperjump/snapseek/internal/search"
	"github.com/hyperjump/snapseek/internal/vector"
)

const benchDims = 256

func randomVector(r *rand.Rand) []float32 {
	v := make([]float32, benchDims)
	for i := range v {
		v[i] = float32(r.NormFloat64())
	}
	return v
}

func BenchmarkMemoryIndexNearestNeighbors(b *testing.B) {
	idx, _ := vector.NewMemoryIndex(benchDims)
	ctx := context.Background()
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 5000; i++ {
		_ = idx.Insert(ctx, &models.IndexedImage{
			ID: fmt.Sprint(i), OwnerID: "u1", SourcePath: fmt.Sprintf("/p/%d", i),
			Embedding: randomVector(r), CreatedAt: time.Now(),
		})
	}
	q := vector.Query{Vector: randomVector(r), CandidatePool: 100, Limit: 10}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.NearestNeighbors(ctx, q)
	}
}

func BenchmarkGraphSearch(b *testing.B) {
	g := vector.NewGraph(16, 100)
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 5000; i++ {
		g.Add(uint64(i+1), "u1", fmt.Sprintf("/p/%d", i), randomVector(r))
	}
	q := vector.Query{Vector: randomVector(r), CandidatePool: 100, Limit: 10}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = g.Search(q)
	}
}

func BenchmarkFilter(b *testing.B) {
	r := rand.New(rand.NewSource(1))
	neighbors := make([]*vector.Neighbor, 100)
	for i := range neighbors {
		neighbors[i] = &vector.Neighbor{SourcePath: fmt.Sprintf("/p/%d", i), Score: r.Float64(), Seq: uint64(i)}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = search.Filter(neighbors, config.DefaultMinScore)
	}
}

func BenchmarkMockProvider_EmbedText(b *testing.B) {
	p := embedding.NewMockProvider(1408)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = p.EmbedText(ctx, "red car parked by the beach")
	}
}
