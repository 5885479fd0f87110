// Package e2e runs a synthetic photo library through the HTTP API and checks that
// every query finds its photos and nothing else.
package e2e

import (
	"fmt"
	"math/rand"

	"github.com/hyperjump/snapseek/internal/embedding"
)

// Dimensions is the embedding size used by the corpus.
const Dimensions = 64

// CorpusPhoto is one synthetic photo. Data is what gets uploaded; the mock
// provider is pinned to return Vector for it.
type CorpusPhoto struct {
	OwnerID string
	Path    string
	Concept string
	Data    []byte
	Vector  []float32
}

// QueryTestCase is a query and the exact set of photo paths it must return.
type QueryTestCase struct {
	Query    string
	OwnerID  string
	Expected []string
}

// Corpus holds photos and query test cases.
type Corpus struct {
	Photos    []CorpusPhoto
	TestCases []QueryTestCase
	concepts  map[string][]float32
}

var concepts = []string{
	"red car", "sandy beach", "golden retriever", "birthday cake", "snowy mountain",
	"city skyline at night", "bowl of ramen", "sunflower field", "sailing boat", "old library",
}

// BuildCorpus returns perConcept photos for each concept, split across two owners.
// Concept vectors are one-hot, and photo vectors add small noise so they score
// well above the threshold for their concept and near zero for the others.
func BuildCorpus(perConcept int, seed int64) *Corpus {
	r := rand.New(rand.NewSource(seed))
	c := &Corpus{concepts: make(map[string][]float32)}
	for ci, name := range concepts {
		base := make([]float32, Dimensions)
		base[ci] = 1
		c.concepts[name] = base

		expected := map[string][]string{}
		for i := 0; i < perConcept; i++ {
			owner := []string{"alice", "bob"}[i%2]
			vec := make([]float32, Dimensions)
			copy(vec, base)
			for d := range vec {
				vec[d] += float32(r.NormFloat64() * 0.05)
			}
			p := CorpusPhoto{
				OwnerID: owner,
				Path:    fmt.Sprintf("/DCIM/%02d-%03d.jpg", ci, i),
				Concept: name,
				Data:    []byte(fmt.Sprintf("jpeg:%s:%d", name, i)),
				Vector:  vec,
			}
			c.Photos = append(c.Photos, p)
			expected[owner] = append(expected[owner], p.Path)
		}
		for _, owner := range []string{"alice", "bob"} {
			c.TestCases = append(c.TestCases, QueryTestCase{Query: name, OwnerID: owner, Expected: expected[owner]})
		}
	}
	return c
}

// Pin makes p return the corpus vectors for photo bytes and concept queries.
func (c *Corpus) Pin(p *embedding.MockProvider) {
	for _, photo := range c.Photos {
		p.Set(string(photo.Data), photo.Vector)
	}
	for name, vec := range c.concepts {
		p.Set(name, vec)
	}
}
