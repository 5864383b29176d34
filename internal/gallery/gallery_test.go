package gallery

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mhornych/presence/internal/embedding"
)

func testIdentity(id, name string, emb embedding.Vector) Identity {
	return Identity{
		ID:          id,
		DisplayName: name,
		Embedding:   emb,
		EnrolledAt:  time.Now(),
	}
}

func TestUpsertAndLookup(t *testing.T) {
	g := New(3)

	if err := g.Upsert(testIdentity("s1", "Alice", embedding.Vector{1, 0, 0})); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := g.Upsert(testIdentity("s2", "Bob", embedding.Vector{0, 1, 0})); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	candidates, err := g.Lookup(embedding.Vector{1, 0.1, 0}, 2)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if candidates[0].IdentityID != "s1" {
		t.Errorf("best candidate = %s; want s1", candidates[0].IdentityID)
	}
	if candidates[0].Similarity < candidates[1].Similarity {
		t.Error("candidates not ordered descending by similarity")
	}
}

func TestUpsertReplaces(t *testing.T) {
	g := New(3)

	if err := g.Upsert(testIdentity("s1", "Alice", embedding.Vector{1, 0, 0})); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := g.Upsert(testIdentity("s1", "Alice B", embedding.Vector{0, 0, 1})); err != nil {
		t.Fatalf("re-enrollment failed: %v", err)
	}

	if g.Count() != 1 {
		t.Fatalf("Count = %d; want 1 after replacement", g.Count())
	}

	candidates, err := g.Lookup(embedding.Vector{0, 0, 1}, 1)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if candidates[0].Similarity < 0.99 {
		t.Errorf("lookup should reflect replaced embedding, similarity = %f", candidates[0].Similarity)
	}
	if candidates[0].DisplayName != "Alice B" {
		t.Errorf("DisplayName = %q; want replaced name", candidates[0].DisplayName)
	}
}

func TestUpsertDimensionMismatch(t *testing.T) {
	g := New(3)
	err := g.Upsert(testIdentity("s1", "Alice", embedding.Vector{1, 0}))
	if !errors.Is(err, embedding.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestLookupDimensionMismatch(t *testing.T) {
	g := New(3)
	_, err := g.Lookup(embedding.Vector{1, 0}, 1)
	if !errors.Is(err, embedding.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestRemoveIdempotent(t *testing.T) {
	g := New(3)
	if err := g.Upsert(testIdentity("s1", "Alice", embedding.Vector{1, 0, 0})); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	g.Remove("s1")
	g.Remove("s1") // absent, must not error or panic
	g.Remove("never-existed")

	if g.Count() != 0 {
		t.Errorf("Count = %d; want 0", g.Count())
	}
	if g.Get("s1") != nil {
		t.Error("Get after Remove should return nil")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	g := New(3)
	if err := g.Upsert(testIdentity("s1", "Alice", embedding.Vector{1, 0, 0})); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got := g.Get("s1")
	got.Embedding[0] = 99

	fresh := g.Get("s1")
	if fresh.Embedding[0] != 1 {
		t.Error("Get must return an independent copy of the embedding")
	}
}

func TestFindByName(t *testing.T) {
	g := New(3)
	if err := g.Upsert(testIdentity("s1", "Jiří Novák", embedding.Vector{1, 0, 0})); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	matches := g.FindByName("jiri-novak")
	if len(matches) != 1 || matches[0].ID != "s1" {
		t.Errorf("FindByName should match normalized names, got %v", matches)
	}

	if len(g.FindByName("someone else")) != 0 {
		t.Error("FindByName should not match unrelated names")
	}
}

func TestHNSWPathConsistent(t *testing.T) {
	const dim = 8
	g := New(dim)

	// Enroll enough identities to trip the HNSW threshold.
	for i := 0; i < hnswMinSize+10; i++ {
		emb := make(embedding.Vector, dim)
		emb[i%dim] = 1
		emb[(i+1)%dim] = float32(i%7) / 10
		id := fmt.Sprintf("s%04d", i)
		if err := g.Upsert(testIdentity(id, "Person "+id, emb)); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	probe := make(embedding.Vector, dim)
	probe[3] = 1

	candidates, err := g.Lookup(probe, 5)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if len(candidates) != 5 {
		t.Fatalf("expected 5 candidates, got %d", len(candidates))
	}
	for i := 1; i < len(candidates); i++ {
		if candidates[i-1].Similarity < candidates[i].Similarity {
			t.Error("HNSW candidates not ordered descending by similarity")
		}
	}

	// Removal must exclude the identity from results even though the HNSW
	// graph has no true deletion.
	removed := candidates[0].IdentityID
	g.Remove(removed)
	candidates, err = g.Lookup(probe, 5)
	if err != nil {
		t.Fatalf("Lookup after Remove failed: %v", err)
	}
	for _, c := range candidates {
		if c.IdentityID == removed {
			t.Errorf("removed identity %s still returned from lookup", removed)
		}
	}
}

func TestUpsertReplacesAfterIndexBuild(t *testing.T) {
	const dim = 8
	g := New(dim)

	for i := 0; i < hnswMinSize; i++ {
		emb := make(embedding.Vector, dim)
		emb[i%dim] = 1
		emb[(i+1)%dim] = float32(i%7) / 10
		id := fmt.Sprintf("s%04d", i)
		if err := g.Upsert(testIdentity(id, "Person "+id, emb)); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	// Re-enrollment must replace the entry, never panic or duplicate it.
	replacement := embedding.Vector{1, 1, 0, 0, 0, 0, 0, 0}
	if err := g.Upsert(testIdentity("s0001", "Person s0001", replacement)); err != nil {
		t.Fatalf("re-enrollment failed: %v", err)
	}
	if g.Count() != hnswMinSize {
		t.Fatalf("Count = %d; want %d after replacement", g.Count(), hnswMinSize)
	}

	candidates, err := g.Lookup(replacement, 1)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if candidates[0].IdentityID != "s0001" {
		t.Errorf("best candidate = %s; want the re-enrolled s0001", candidates[0].IdentityID)
	}
	if candidates[0].Similarity < 0.999 {
		t.Errorf("lookup should reflect the replaced embedding, similarity = %f", candidates[0].Similarity)
	}
}

func TestConcurrentLookupsAndUpserts(t *testing.T) {
	g := New(4)
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("s%d", i)
		if err := g.Upsert(testIdentity(id, id, embedding.Vector{float32(i), 1, 0, 0})); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if w%2 == 0 {
					if _, err := g.Lookup(embedding.Vector{1, 0, 0, 1}, 3); err != nil {
						t.Errorf("Lookup failed: %v", err)
						return
					}
				} else {
					id := fmt.Sprintf("s%d", i%50)
					_ = g.Upsert(testIdentity(id, id, embedding.Vector{float32(i), 0, 1, 0}))
				}
			}
		}(w)
	}
	wg.Wait()
}
