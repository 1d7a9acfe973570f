package embedding

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// EmbeddingCache is an LRU cache for query embeddings keyed by text. A
// cache built with a non-positive capacity stores nothing.
type EmbeddingCache struct {
	lru *lru.Cache[string, []float32]
}

// NewEmbeddingCache creates a new cache with the given capacity.
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	if capacity <= 0 {
		return &EmbeddingCache{}
	}
	c, err := lru.New[string, []float32](capacity)
	if err != nil {
		return &EmbeddingCache{}
	}
	return &EmbeddingCache{lru: c}
}

// Get returns the cached embedding for key and marks it recently used.
func (c *EmbeddingCache) Get(key string) ([]float32, bool) {
	if c.lru == nil {
		return nil, false
	}
	return c.lru.Get(key)
}

// Set stores the embedding for key, evicting the least recently used entry
// when full.
func (c *EmbeddingCache) Set(key string, value []float32) {
	if c.lru == nil {
		return
	}
	c.lru.Add(key, value)
}

// Len returns the number of cached entries.
func (c *EmbeddingCache) Len() int {
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}
