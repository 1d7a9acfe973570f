package indexer

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

const warmBatchSize = 512

// WarmIndex loads every persisted chunk embedding into index and returns the
// number of vectors loaded. It is used to rebuild an in-memory index at startup.
func WarmIndex(ctx context.Context, store storage.Storage, index vector.VectorIndex) (int, error) {
	loaded := 0
	batch := make([]vector.Entry, 0, warmBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := index.Upsert(ctx, batch...); err != nil {
			return err
		}
		loaded += len(batch)
		batch = batch[:0]
		return nil
	}
	err := store.ForEachChunk(ctx, func(c *models.Chunk) error {
		batch = append(batch, vector.Entry{
			ChunkID:    c.ID,
			OwnerID:    c.OwnerID,
			DocumentID: c.DocumentID,
			Index:      c.Index,
			Vector:     c.Embedding,
		})
		if len(batch) == warmBatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return loaded, err
	}
	return loaded, flush()
}
