package vector

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperjump/kotae/pkg/utils"
)

// MemoryIndex is an in-process index using brute-force cosine search over
// the requesting owner's vectors only. Vectors are stored L2-normalized so a
// dot product is the cosine.
type MemoryIndex struct {
	dimensions int
	entries    map[string]*Entry              // chunk ID -> entry
	byOwner    map[string]map[string]struct{} // owner ID -> chunk IDs
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		entries:    make(map[string]*Entry),
		byOwner:    make(map[string]map[string]struct{}),
	}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Upsert validates every entry before storing any of them.
func (m *MemoryIndex) Upsert(ctx context.Context, entries ...Entry) error {
	for _, e := range entries {
		if err := validateEntry(e, m.dimensions); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if old, ok := m.entries[e.ChunkID]; ok && old.OwnerID != e.OwnerID {
			m.unlinkLocked(old)
		}
		stored := e
		stored.Vector = utils.NormalizedCopy(e.Vector)
		m.entries[e.ChunkID] = &stored
		owned, ok := m.byOwner[e.OwnerID]
		if !ok {
			owned = make(map[string]struct{})
			m.byOwner[e.OwnerID] = owned
		}
		owned[e.ChunkID] = struct{}{}
	}
	return nil
}

// Query scans the owner's vectors and returns the top K.
func (m *MemoryIndex) Query(ctx context.Context, q Query) ([]Match, error) {
	if err := validateQuery(q, m.dimensions); err != nil {
		return nil, err
	}
	if q.K <= 0 {
		return nil, nil
	}
	query := utils.NormalizedCopy(q.Vector)
	docs := documentSet(q.DocumentIDs)

	m.mu.RLock()
	owned := m.byOwner[q.OwnerID]
	matches := make([]Match, 0, len(owned))
	for id := range owned {
		e := m.entries[id]
		if docs != nil {
			if _, ok := docs[e.DocumentID]; !ok {
				continue
			}
		}
		score := InnerProduct(query, e.Vector)
		if q.MinScore != nil && score < *q.MinScore {
			continue
		}
		matches = append(matches, Match{ChunkID: e.ChunkID, DocumentID: e.DocumentID, Index: e.Index, Score: score})
	}
	m.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return topMatches(matches, q.K), nil
}

// Delete removes chunks by ID; unknown IDs are ignored.
func (m *MemoryIndex) Delete(ctx context.Context, chunkIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range chunkIDs {
		if e, ok := m.entries[id]; ok {
			m.unlinkLocked(e)
		}
	}
	return nil
}

// DeleteDocument removes all of the owner's chunks for documentID.
func (m *MemoryIndex) DeleteDocument(ctx context.Context, ownerID, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.byOwner[ownerID] {
		if e := m.entries[id]; e.DocumentID == documentID {
			m.unlinkLocked(e)
		}
	}
	return nil
}

func (m *MemoryIndex) unlinkLocked(e *Entry) {
	delete(m.entries, e.ChunkID)
	if owned, ok := m.byOwner[e.OwnerID]; ok {
		delete(owned, e.ChunkID)
		if len(owned) == 0 {
			delete(m.byOwner, e.OwnerID)
		}
	}
}

// Count returns the number of vectors in the index.
func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	return m.Size(), nil
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
