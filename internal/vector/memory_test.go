package vector

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

// unitAt returns a 2-d unit vector whose cosine with (1, 0) is cos.
func unitAt(cos float64) []float32 {
	return []float32{float32(cos), float32(math.Sqrt(1 - cos*cos))}
}

func TestMemoryIndex_QueryRanking(t *testing.T) {
	idx, err := NewMemoryIndex(2)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	err = idx.Upsert(ctx,
		Entry{ChunkID: "c-low", OwnerID: "u1", DocumentID: "d1", Index: 0, Vector: unitAt(0.1)},
		Entry{ChunkID: "c-high", OwnerID: "u1", DocumentID: "d1", Index: 1, Vector: unitAt(0.9)},
		Entry{ChunkID: "c-mid", OwnerID: "u1", DocumentID: "d1", Index: 2, Vector: unitAt(0.5)},
	)
	if err != nil {
		t.Fatal(err)
	}

	got, err := idx.Query(ctx, Query{OwnerID: "u1", Vector: []float32{1, 0}, K: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	if got[0].ChunkID != "c-high" || got[1].ChunkID != "c-mid" {
		t.Errorf("unexpected order: %+v", got)
	}
	if math.Abs(got[0].Score-0.9) > 1e-5 || math.Abs(got[1].Score-0.5) > 1e-5 {
		t.Errorf("unexpected scores: %v, %v", got[0].Score, got[1].Score)
	}
}

func TestMemoryIndex_OwnerIsolation(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Upsert(ctx,
		Entry{ChunkID: "a", OwnerID: "alice", DocumentID: "d1", Vector: []float32{1, 0}},
		Entry{ChunkID: "b", OwnerID: "bob", DocumentID: "d2", Vector: []float32{1, 0}},
	)

	got, err := idx.Query(ctx, Query{OwnerID: "bob", Vector: []float32{1, 0}, K: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ChunkID != "b" {
		t.Fatalf("bob must only see his own chunk, got %+v", got)
	}

	got, _ = idx.Query(ctx, Query{OwnerID: "carol", Vector: []float32{1, 0}, K: 10})
	if len(got) != 0 {
		t.Errorf("unknown owner should see nothing, got %+v", got)
	}
}

func TestMemoryIndex_TieBreakByIndex(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Upsert(ctx,
		Entry{ChunkID: "z", OwnerID: "u", DocumentID: "d", Index: 3, Vector: []float32{0, 1}},
		Entry{ChunkID: "y", OwnerID: "u", DocumentID: "d", Index: 1, Vector: []float32{0, 1}},
		Entry{ChunkID: "x", OwnerID: "u", DocumentID: "d", Index: 2, Vector: []float32{0, 1}},
	)
	got, _ := idx.Query(ctx, Query{OwnerID: "u", Vector: []float32{0, 1}, K: 3})
	want := []int{1, 2, 3}
	for i, m := range got {
		if m.Index != want[i] {
			t.Fatalf("position %d: got index %d, want %d", i, m.Index, want[i])
		}
	}
}

func TestMemoryIndex_FiltersAndMinScore(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Upsert(ctx,
		Entry{ChunkID: "a", OwnerID: "u", DocumentID: "d1", Vector: unitAt(0.95)},
		Entry{ChunkID: "b", OwnerID: "u", DocumentID: "d2", Vector: unitAt(0.8)},
		Entry{ChunkID: "c", OwnerID: "u", DocumentID: "d2", Vector: unitAt(0.2)},
	)

	got, _ := idx.Query(ctx, Query{OwnerID: "u", Vector: []float32{1, 0}, K: 5, DocumentIDs: []string{"d2"}})
	if len(got) != 2 || got[0].ChunkID != "b" {
		t.Errorf("document filter: got %+v", got)
	}

	floor := 0.5
	got, _ = idx.Query(ctx, Query{OwnerID: "u", Vector: []float32{1, 0}, K: 5, MinScore: &floor})
	if len(got) != 2 {
		t.Errorf("min score: expected 2 matches, got %+v", got)
	}
}

func TestMemoryIndex_UpsertOverwrites(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Upsert(ctx, Entry{ChunkID: "a", OwnerID: "u", DocumentID: "d", Vector: []float32{0, 1}})
	_ = idx.Upsert(ctx, Entry{ChunkID: "a", OwnerID: "u", DocumentID: "d", Vector: []float32{1, 0}})

	if n, _ := idx.Count(ctx); n != 1 {
		t.Fatalf("Count=%d, want 1", n)
	}
	got, _ := idx.Query(ctx, Query{OwnerID: "u", Vector: []float32{1, 0}, K: 1})
	if len(got) != 1 || got[0].Score < 0.999 {
		t.Errorf("expected overwritten vector, got %+v", got)
	}
}

func TestMemoryIndex_DeleteDocument(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Upsert(ctx,
		Entry{ChunkID: "a", OwnerID: "u", DocumentID: "d1", Vector: []float32{1, 0}},
		Entry{ChunkID: "b", OwnerID: "u", DocumentID: "d1", Vector: []float32{0, 1}},
		Entry{ChunkID: "c", OwnerID: "u", DocumentID: "d2", Vector: []float32{1, 1}},
		Entry{ChunkID: "d", OwnerID: "other", DocumentID: "d1", Vector: []float32{1, 1}},
	)
	if err := idx.DeleteDocument(ctx, "u", "d1"); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 2 {
		t.Fatalf("Size=%d, want 2", idx.Size())
	}
	if err := idx.Delete(ctx, []string{"c", "missing"}); err != nil {
		t.Fatal(err)
	}
	got, _ := idx.Query(ctx, Query{OwnerID: "other", Vector: []float32{1, 0}, K: 5})
	if len(got) != 1 {
		t.Errorf("other owner's chunk must survive, got %+v", got)
	}
}

func TestMemoryIndex_Validation(t *testing.T) {
	idx, _ := NewMemoryIndex(3)
	ctx := context.Background()

	err := idx.Upsert(ctx, Entry{ChunkID: "a", OwnerID: "u", DocumentID: "d", Vector: []float32{1, 0}})
	if !errors.Is(err, models.ErrValidation) {
		t.Errorf("dimension mismatch: expected ErrValidation, got %v", err)
	}
	err = idx.Upsert(ctx, Entry{ChunkID: "a", DocumentID: "d", Vector: []float32{1, 0, 0}})
	if !errors.Is(err, models.ErrValidation) {
		t.Errorf("missing owner: expected ErrValidation, got %v", err)
	}
	_, err = idx.Query(ctx, Query{Vector: []float32{1, 0, 0}, K: 1})
	if !errors.Is(err, models.ErrValidation) {
		t.Errorf("query without owner: expected ErrValidation, got %v", err)
	}
	if idx.Size() != 0 {
		t.Errorf("rejected upserts must not store anything")
	}
}

func TestNewMemoryIndex_invalidDimensions(t *testing.T) {
	if _, err := NewMemoryIndex(0); err == nil {
		t.Error("expected error for zero dimensions")
	}
}
