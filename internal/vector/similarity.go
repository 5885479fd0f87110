package vector

import (
	"fmt"
	"math"

	"github.com/hyperjump/snapseek/internal/models"
	"github.com/hyperjump/snapseek/pkg/utils"
)

// InnerProduct returns the inner product of two vectors (for normalized vectors equals cosine similarity).
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// CosineSimilarity returns the cosine similarity of a and b clamped to [0, 1].
// Mismatched or zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	na, nb := L2Norm(a), L2Norm(b)
	if na == 0 || nb == 0 || len(a) != len(b) {
		return 0
	}
	return utils.Clamp01(InnerProduct(a, b) / (na * nb))
}

// CheckVector reports vectors that cannot be stored in or queried against an
// index of the given dimensions.
func CheckVector(v []float32, dimensions int) error {
	if len(v) != dimensions {
		return fmt.Errorf("%w: vector has %d dimensions, index expects %d", models.ErrInvalidInput, len(v), dimensions)
	}
	if L2Norm(v) == 0 {
		return fmt.Errorf("%w: zero vector", models.ErrInvalidInput)
	}
	return nil
}
