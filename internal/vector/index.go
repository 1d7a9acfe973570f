// Package vector stores chunk embeddings with tenant and document metadata
// and answers owner-scoped cosine nearest-neighbour queries.
package vector

import (
	"context"
	"fmt"
	"sort"

	"github.com/hyperjump/kotae/internal/models"
)

// VectorIndex defines vector storage and similarity search. Implementations
// are safe for concurrent use and never return another owner's chunks.
type VectorIndex interface {
	// Upsert stores entries; re-upserting a chunk ID overwrites it.
	Upsert(ctx context.Context, entries ...Entry) error
	// Query returns matches ordered by descending score, ties broken by
	// ascending chunk index.
	Query(ctx context.Context, q Query) ([]Match, error)
	// Delete removes chunks by ID.
	Delete(ctx context.Context, chunkIDs []string) error
	// DeleteDocument removes every chunk of one of the owner's documents.
	DeleteDocument(ctx context.Context, ownerID, documentID string) error
	// Count returns the number of stored vectors.
	Count(ctx context.Context) (int, error)
	Close() error
}

// Entry is one chunk vector with its ownership metadata.
type Entry struct {
	ChunkID    string
	OwnerID    string
	DocumentID string
	Index      int
	Vector     []float32
}

// Query describes a nearest-neighbour search.
type Query struct {
	OwnerID     string
	Vector      []float32
	K           int
	DocumentIDs []string // optional narrowing
	MinScore    *float64 // optional floor, inclusive
}

// Match is a single search hit.
type Match struct {
	ChunkID    string
	DocumentID string
	Index      int
	Score      float64
}

func validateEntry(e Entry, dims int) error {
	if e.ChunkID == "" || e.OwnerID == "" || e.DocumentID == "" {
		return fmt.Errorf("%w: entry requires chunk, owner and document ids", models.ErrValidation)
	}
	if len(e.Vector) != dims {
		return fmt.Errorf("%w: vector dimension mismatch: got %d, expected %d", models.ErrValidation, len(e.Vector), dims)
	}
	return nil
}

func validateQuery(q Query, dims int) error {
	if q.OwnerID == "" {
		return fmt.Errorf("%w: query requires an owner", models.ErrValidation)
	}
	if len(q.Vector) != dims {
		return fmt.Errorf("%w: query dimension mismatch: got %d, expected %d", models.ErrValidation, len(q.Vector), dims)
	}
	return nil
}

// sortMatches orders by score descending, then chunk index, then chunk ID.
func sortMatches(ms []Match) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].Score != ms[j].Score {
			return ms[i].Score > ms[j].Score
		}
		if ms[i].Index != ms[j].Index {
			return ms[i].Index < ms[j].Index
		}
		return ms[i].ChunkID < ms[j].ChunkID
	})
}

// topMatches orders ms and keeps the first k.
func topMatches(ms []Match, k int) []Match {
	sortMatches(ms)
	if len(ms) > k {
		ms = ms[:k]
	}
	return ms
}

func documentSet(ids []string) map[string]struct{} {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
