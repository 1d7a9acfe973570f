package vector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
)

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory keeps vectors in process; they are reloaded from the
	// relational store at startup.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeQdrant stores vectors in a Qdrant collection.
	IndexTypeQdrant IndexType = "qdrant"
)

// NewVectorIndex creates the vector index selected by cfg.
func NewVectorIndex(ctx context.Context, cfg *config.VectorConfig, dimensions int, logger *zap.Logger) (VectorIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch IndexType(cfg.Type) {
	case IndexTypeMemory, "":
		return NewMemoryIndex(dimensions)
	case IndexTypeQdrant:
		return NewQdrantIndex(ctx, &cfg.Qdrant, dimensions, logger)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, qdrant)", cfg.Type)
	}
}

// Persistent reports whether the index keeps vectors across restarts.
func Persistent(idx VectorIndex) bool {
	_, inMemory := idx.(*MemoryIndex)
	return !inMemory
}
