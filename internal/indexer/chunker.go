// Package indexer turns uploaded documents into embedded, queryable chunks.
package indexer

import (
	"fmt"
	"iter"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
)

// Chunker splits text into overlapping rune windows.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// Window is one chunk of text located by rune offsets [Start, End).
type Window struct {
	Index int
	Start int
	End   int
	Text  string
}

// NewChunker creates a chunker with the given size and overlap (in runes).
// Overlap must satisfy 0 <= overlap < size.
func NewChunker(chunkSize, chunkOverlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", models.ErrValidation, chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", models.ErrValidation, chunkSize, chunkOverlap)
	}
	return &Chunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}, nil
}

// Count returns the number of windows for a text of length runes.
func (c *Chunker) Count(length int) int {
	switch {
	case length <= 0:
		return 0
	case length <= c.chunkSize:
		return 1
	}
	step := c.chunkSize - c.chunkOverlap
	return (length - c.chunkOverlap + step - 1) / step
}

// Windows yields the windows of text in order. Every call starts over.
func (c *Chunker) Windows(text string) iter.Seq[Window] {
	return func(yield func(Window) bool) {
		runes := []rune(text)
		step := c.chunkSize - c.chunkOverlap
		for i, start := 0, 0; start < len(runes); i, start = i+1, start+step {
			end := min(start+c.chunkSize, len(runes))
			if !yield(Window{Index: i, Start: start, End: end, Text: string(runes[start:end])}) {
				return
			}
			if end == len(runes) {
				return
			}
		}
	}
}

// Chunk splits text into chunks of doc. Chunk IDs are derived from the
// document ID and index, so re-chunking the same text reproduces them.
func (c *Chunker) Chunk(doc *models.Document, text string) []*models.Chunk {
	var chunks []*models.Chunk
	for w := range c.Windows(text) {
		chunks = append(chunks, &models.Chunk{
			ID:         fileid.ChunkID(doc.ID, w.Index),
			DocumentID: doc.ID,
			OwnerID:    doc.OwnerID,
			Index:      w.Index,
			Content:    w.Text,
			TokenCount: embedding.CountTokens(w.Text),
		})
	}
	return chunks
}
