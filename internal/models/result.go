package models

// ScoredChunk is a retrieved chunk with its cosine similarity to the query.
type ScoredChunk struct {
	Chunk    *Chunk  `json:"chunk"`
	Score    float64 `json:"score"`
	Filename string  `json:"filename"`
}

// RetrievalResult is the ordered (descending score) output of one retrieval.
// It is never persisted.
type RetrievalResult struct {
	Chunks    []ScoredChunk `json:"chunks"`
	QueryTime int64         `json:"query_time_ms"`
}

// Empty reports whether nothing was retrieved.
func (r *RetrievalResult) Empty() bool {
	return r == nil || len(r.Chunks) == 0
}

// Citations returns the citation entries for the retrieved chunks, in order.
func (r *RetrievalResult) Citations() []Citation {
	if r.Empty() {
		return nil
	}
	out := make([]Citation, 0, len(r.Chunks))
	for _, sc := range r.Chunks {
		out = append(out, Citation{
			ChunkID:    sc.Chunk.ID,
			DocumentID: sc.Chunk.DocumentID,
			Filename:   sc.Filename,
			Index:      sc.Chunk.Index,
			Score:      sc.Score,
		})
	}
	return out
}
