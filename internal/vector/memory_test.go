package vector

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/snapseek/internal/models"
)

func img(owner, path string, vec ...float32) *models.IndexedImage {
	return &models.IndexedImage{
		ID:         owner + ":" + path,
		OwnerID:    owner,
		SourcePath: path,
		Embedding:  vec,
		CreatedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMemoryIndex_InsertFind(t *testing.T) {
	idx, err := NewMemoryIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	if _, err := idx.FindByOwnerAndPath(ctx, "u1", "/p/1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := idx.Insert(ctx, img("u1", "/p/1", 1, 0, 0)); err != nil {
		t.Fatal(err)
	}
	got, err := idx.FindByOwnerAndPath(ctx, "u1", "/p/1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "u1:/p/1" || got.Embedding[0] != 1 {
		t.Errorf("unexpected record %+v", got)
	}
	if err := idx.Insert(ctx, img("u1", "/p/1", 0, 1, 0)); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
	// Same path, different owner is a different record.
	if err := idx.Insert(ctx, img("u2", "/p/1", 0, 1, 0)); err != nil {
		t.Errorf("other owner insert: %v", err)
	}
	if n, _ := idx.Size(ctx); n != 2 {
		t.Errorf("Size=%d, want 2", n)
	}
	got, _ = idx.FindByOwnerAndPath(ctx, "u1", "/p/1")
	if got.Embedding[0] != 1 {
		t.Error("duplicate insert must not replace the first embedding")
	}
}

func TestMemoryIndex_InsertRejectsBadVector(t *testing.T) {
	idx, _ := NewMemoryIndex(3)
	ctx := context.Background()
	if err := idx.Insert(ctx, img("u1", "a", 1, 0)); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("dimension mismatch: got %v", err)
	}
	if err := idx.Insert(ctx, img("u1", "a", 0, 0, 0)); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("zero vector: got %v", err)
	}
}

func TestMemoryIndex_NearestNeighbors(t *testing.T) {
	idx, _ := NewMemoryIndex(3)
	ctx := context.Background()
	_ = idx.Insert(ctx, img("u1", "a", 1, 0, 0))
	_ = idx.Insert(ctx, img("u1", "b", 0.9, 0.1, 0))
	_ = idx.Insert(ctx, img("u1", "c", 0, 1, 0))
	_ = idx.Insert(ctx, img("u2", "d", 1, 0, 0))

	results, err := idx.NearestNeighbors(ctx, Query{Vector: []float32{1, 0, 0}, CandidatePool: 10, Limit: 2, OwnerID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].SourcePath != "a" || results[1].SourcePath != "b" {
		t.Errorf("unexpected order %s, %s", results[0].SourcePath, results[1].SourcePath)
	}
	if results[0].Score < results[1].Score {
		t.Error("scores must be non-increasing")
	}

	all, _ := idx.NearestNeighbors(ctx, Query{Vector: []float32{1, 0, 0}, CandidatePool: 10, Limit: 10})
	if len(all) != 4 {
		t.Fatalf("expected 4 results without owner filter, got %d", len(all))
	}
	// a and d tie at 1.0; insertion order breaks the tie.
	if all[0].SourcePath != "a" || all[1].SourcePath != "d" {
		t.Errorf("tie not broken by insertion order: %s, %s", all[0].SourcePath, all[1].SourcePath)
	}
	if all[3].Score != 0 {
		t.Errorf("orthogonal vector should score 0, got %v", all[3].Score)
	}
}

func TestMemoryIndex_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot", "images.idx")
	ctx := context.Background()
	idx, _ := NewMemoryIndex(2)
	_ = idx.Insert(ctx, img("u1", "/p/1", 0.6, 0.8))
	_ = idx.Insert(ctx, img("u1", "/p/2", 1, 0))
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}

	restored, _ := NewMemoryIndex(2)
	if err := restored.Load(path); err != nil {
		t.Fatal(err)
	}
	if n, _ := restored.Size(ctx); n != 2 {
		t.Fatalf("Size=%d after load", n)
	}
	got, err := restored.FindByOwnerAndPath(ctx, "u1", "/p/1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Embedding[1] != 0.8 || !got.CreatedAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("record not restored: %+v", got)
	}
	if err := restored.Insert(ctx, img("u1", "/p/2", 0, 1)); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("uniqueness lost after load: %v", err)
	}

	wrong, _ := NewMemoryIndex(3)
	if err := wrong.Load(path); err == nil {
		t.Error("expected dimension mismatch error")
	}
	if err := wrong.Load(filepath.Join(t.TempDir(), "missing")); err != nil {
		t.Errorf("missing snapshot should be ignored: %v", err)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2}, []float32{1, 2}, 1},
		{"unnormalized", []float32{3, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite clamps", []float32{1, 0}, []float32{-1, 0}, 0},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
		{"zero", []float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if got < tt.want-1e-6 || got > tt.want+1e-6 {
				t.Errorf("CosineSimilarity = %v, want %v", got, tt.want)
			}
		})
	}
}
