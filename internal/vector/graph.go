package vector

import (
	"sync"

	"github.com/coder/hnsw"

	"github.com/hyperjump/snapseek/pkg/utils"
)

// Graph is an approximate nearest-neighbor graph over normalized embeddings,
// keyed by the owning store's insertion sequence. It holds only what ranking
// needs; the records themselves stay in the store.
type Graph struct {
	mu    sync.Mutex
	graph *hnsw.Graph[uint64]
	meta  map[uint64]graphEntry
}

type graphEntry struct {
	ownerID    string
	sourcePath string
}

// NewGraph creates an empty graph. m and efSearch fall back to 16 and 100 when zero.
func NewGraph(m, efSearch int) *Graph {
	if m <= 0 {
		m = 16
	}
	if efSearch <= 0 {
		efSearch = 100
	}
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = m
	g.EfSearch = efSearch
	g.Ml = 0.25
	return &Graph{graph: g, meta: make(map[uint64]graphEntry)}
}

// Add inserts a vector under seq. The vector is copied and normalized.
func (g *Graph) Add(seq uint64, ownerID, sourcePath string, vec []float32) {
	node := hnsw.MakeNode(seq, utils.Normalized(vec))
	g.mu.Lock()
	defer g.mu.Unlock()
	g.graph.Add(node)
	g.meta[seq] = graphEntry{ownerID: ownerID, sourcePath: sourcePath}
}

// Len returns the number of vectors in the graph.
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.graph.Len()
}

// Search examines q.PoolSize() approximate neighbors of q.Vector, rescores them
// exactly, drops other owners when q.OwnerID is set and returns at most q.Limit
// ranked hits.
func (g *Graph) Search(q Query) []*Neighbor {
	query := utils.Normalized(q.Vector)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.graph.Len() == 0 {
		return []*Neighbor{}
	}
	nodes := g.graph.Search(query, q.PoolSize())

	out := make([]*Neighbor, 0, len(nodes))
	for _, node := range nodes {
		entry, ok := g.meta[node.Key]
		if !ok {
			continue
		}
		if q.OwnerID != "" && entry.ownerID != q.OwnerID {
			continue
		}
		out = append(out, &Neighbor{
			SourcePath: entry.sourcePath,
			OwnerID:    entry.ownerID,
			Score:      CosineSimilarity(query, node.Value),
			Seq:        node.Key,
		})
	}
	return Rank(out, q.Limit)
}
