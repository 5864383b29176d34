// Package gallery holds the enrolled reference embeddings and supports
// nearest-neighbor lookup against them. The gallery is read-mostly: lookups
// run concurrently, enrollment and removal take the write lock.
package gallery

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mhornych/presence/internal/embedding"
)

// Identity is an enrolled person with one reference embedding.
// Re-enrollment replaces the entry, it is never merged or mutated in place.
type Identity struct {
	ID          string
	DisplayName string
	Embedding   embedding.Vector
	EnrolledAt  time.Time
}

// Candidate is a single lookup result.
type Candidate struct {
	IdentityID  string
	DisplayName string
	Similarity  float64
}

// Gallery is the in-memory index of enrolled identities.
type Gallery struct {
	mu         sync.RWMutex
	dim        int
	identities map[string]*Identity
	index      *hnswIndex // nil until the gallery grows past hnswMinSize
}

// hnswMinSize is the gallery size at which lookups switch from a linear scan
// to the HNSW graph. Linear scan wins below this because building and
// searching the graph costs more than a few hundred cosine computations.
const hnswMinSize = 512

// New creates an empty gallery for embeddings of the given dimension.
func New(dim int) *Gallery {
	if dim <= 0 {
		dim = embedding.DefaultDim
	}
	return &Gallery{
		dim:        dim,
		identities: make(map[string]*Identity),
	}
}

// Dim returns the embedding dimension the gallery was created with.
func (g *Gallery) Dim() int {
	return g.dim
}

// Upsert enrolls an identity, replacing any existing entry with the same ID.
// Lookups reflect the new reference embedding immediately; in-flight lookups
// may observe either the old or the new value.
func (g *Gallery) Upsert(id Identity) error {
	if id.ID == "" {
		return fmt.Errorf("identity ID is required")
	}
	if len(id.Embedding) != g.dim {
		return fmt.Errorf("%w: identity %s has dim %d, gallery expects %d",
			embedding.ErrDimensionMismatch, id.ID, len(id.Embedding), g.dim)
	}

	stored := id
	stored.Embedding = id.Embedding.Clone()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.identities[id.ID] = &stored
	// A freshly built index already contains every identity, including this
	// one; adding it again would duplicate the graph node.
	if !g.maybeBuildIndexLocked() && g.index != nil {
		g.index.add(&stored)
	}
	return nil
}

// Remove deletes an identity. Removing an absent ID is a no-op.
func (g *Gallery) Remove(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.identities, id)
	if g.index != nil {
		// HNSW has no true deletion; lookups filter through the live map,
		// so dropping the map entry removes it from results.
		g.index.remove(id)
	}
}

// Get returns the identity for the given ID, or nil if not enrolled.
func (g *Gallery) Get(id string) *Identity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ident, ok := g.identities[id]
	if !ok {
		return nil
	}
	out := *ident
	out.Embedding = ident.Embedding.Clone()
	return &out
}

// List returns all enrolled identities ordered by display name.
func (g *Gallery) List() []Identity {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Identity, 0, len(g.identities))
	for _, ident := range g.identities {
		cp := *ident
		cp.Embedding = ident.Embedding.Clone()
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Count returns the number of enrolled identities.
func (g *Gallery) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.identities)
}

// FindByName returns identities whose display name matches the query after
// normalization (case and diacritics insensitive).
func (g *Gallery) FindByName(query string) []Identity {
	normalized := NormalizeName(query)

	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Identity
	for _, ident := range g.identities {
		if NormalizeName(ident.DisplayName) == normalized {
			cp := *ident
			cp.Embedding = ident.Embedding.Clone()
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Lookup finds the topK most similar enrolled identities to the probe,
// ordered descending by similarity. Returns ErrDimensionMismatch if the
// probe dimension differs from the gallery's.
func (g *Gallery) Lookup(probe embedding.Vector, topK int) ([]Candidate, error) {
	if len(probe) != g.dim {
		return nil, fmt.Errorf("%w: probe has dim %d, gallery expects %d",
			embedding.ErrDimensionMismatch, len(probe), g.dim)
	}
	if topK <= 0 {
		topK = 1
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.index != nil {
		return g.lookupIndexLocked(probe, topK)
	}
	return g.scanLocked(probe, topK)
}

// scanLocked is the linear scan path. Fine at hundreds of identities.
func (g *Gallery) scanLocked(probe embedding.Vector, topK int) ([]Candidate, error) {
	candidates := make([]Candidate, 0, len(g.identities))
	for _, ident := range g.identities {
		sim, err := embedding.Cosine(probe, ident.Embedding)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, Candidate{
			IdentityID:  ident.ID,
			DisplayName: ident.DisplayName,
			Similarity:  sim,
		})
	}

	sortCandidates(candidates)
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

// lookupIndexLocked searches the HNSW graph, then recomputes exact similarity
// from the live identity embeddings so that stale graph nodes (replaced or
// removed entries) never leak into results.
func (g *Gallery) lookupIndexLocked(probe embedding.Vector, topK int) ([]Candidate, error) {
	ids := g.index.search(probe, topK*hnswSearchMultiplier)

	seen := make(map[string]bool, len(ids))
	candidates := make([]Candidate, 0, topK)
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		ident, ok := g.identities[id]
		if !ok {
			continue // removed since the node was indexed
		}
		sim, err := embedding.Cosine(probe, ident.Embedding)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, Candidate{
			IdentityID:  ident.ID,
			DisplayName: ident.DisplayName,
			Similarity:  sim,
		})
	}

	sortCandidates(candidates)
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

func sortCandidates(c []Candidate) {
	sort.Slice(c, func(i, j int) bool {
		if c[i].Similarity != c[j].Similarity {
			return c[i].Similarity > c[j].Similarity
		}
		return c[i].IdentityID < c[j].IdentityID
	})
}

// maybeBuildIndexLocked builds the HNSW graph once the gallery crosses the
// size threshold and reports whether it did. Caller must hold the write lock.
func (g *Gallery) maybeBuildIndexLocked() bool {
	if g.index != nil || len(g.identities) < hnswMinSize {
		return false
	}
	g.index = newHNSWIndex()
	for _, ident := range g.identities {
		g.index.add(ident)
	}
	return true
}
