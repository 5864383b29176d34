package gallery

import (
	"github.com/coder/hnsw"

	"github.com/mhornych/presence/internal/embedding"
)

// HNSW parameters for face embedding search.
const (
	// hnswMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	hnswMaxNeighbors = 16

	// hnswSearchMultiplier requests extra candidates from the graph so that
	// enough survive the live-map filter after replacements and removals.
	hnswSearchMultiplier = 3
)

// hnswIndex wraps the HNSW graph keyed by identity ID. It carries no lock of
// its own; the owning Gallery serializes access.
type hnswIndex struct {
	graph   *hnsw.Graph[string]
	keys    map[string]bool // keys currently in the graph
	removed map[string]bool
}

func newHNSWIndex() *hnswIndex {
	g := hnsw.NewGraph[string]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors) // standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return &hnswIndex{
		graph:   g,
		keys:    make(map[string]bool),
		removed: make(map[string]bool),
	}
}

func (h *hnswIndex) add(ident *Identity) {
	if len(ident.Embedding) == 0 {
		return
	}
	delete(h.removed, ident.ID)
	// Graph.Add panics on a key that is already present, so a replacement
	// drops the old node first.
	if h.keys[ident.ID] {
		h.graph.Delete(ident.ID)
	}
	h.graph.Add(hnsw.MakeNode(ident.ID, ident.Embedding))
	h.keys[ident.ID] = true
}

func (h *hnswIndex) remove(id string) {
	h.removed[id] = true
}

// search returns candidate identity IDs nearest to the query. Stale nodes are
// filtered here by tombstone and again by the gallery's live map.
func (h *hnswIndex) search(query embedding.Vector, k int) []string {
	neighbors := h.graph.Search(query, k)
	ids := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		if h.removed[n.Key] {
			continue
		}
		ids = append(ids, n.Key)
	}
	return ids
}
