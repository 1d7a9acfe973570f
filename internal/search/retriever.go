// Package search retrieves the chunks most relevant to a query for one owner.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

// QueryEmbedder embeds a single query string.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Retriever combines query embedding, owner-scoped vector search and chunk
// hydration from the relational store.
type Retriever struct {
	embedder QueryEmbedder
	index    vector.VectorIndex
	store    storage.Storage
	minScore *float64
	timeout  time.Duration
	logger   *zap.Logger
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithLogger sets the logger for the retriever.
func WithLogger(l *zap.Logger) RetrieverOption {
	return func(r *Retriever) { r.logger = l }
}

// WithMinScore sets the default similarity floor.
func WithMinScore(score *float64) RetrieverOption {
	return func(r *Retriever) { r.minScore = score }
}

// WithTimeout bounds every vector query.
func WithTimeout(d time.Duration) RetrieverOption {
	return func(r *Retriever) { r.timeout = d }
}

// NewRetriever creates a retriever over the given collaborators.
func NewRetriever(embedder QueryEmbedder, index vector.VectorIndex, store storage.Storage, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		embedder: embedder,
		index:    index,
		store:    store,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns up to k of the owner's chunks most similar to query,
// optionally restricted to documentIDs. An owner without chunks gets an
// empty result, not an error. Embedding and vector store errors are returned
// unchanged.
func (r *Retriever) Retrieve(ctx context.Context, ownerID, query string, k int, documentIDs ...string) (*models.RetrievalResult, error) {
	return r.retrieve(ctx, ownerID, query, k, documentIDs, r.minScore)
}

// Search runs a validated retrieval request; q.MinScore overrides the
// configured floor.
func (r *Retriever) Search(ctx context.Context, ownerID string, q *models.RetrieveQuery, defaultLimit int) (*models.RetrievalResult, error) {
	if err := q.Validate(defaultLimit); err != nil {
		return nil, err
	}
	floor := r.minScore
	if q.MinScore != nil {
		floor = q.MinScore
	}
	return r.retrieve(ctx, ownerID, q.Query, q.Limit, q.DocumentIDs, floor)
}

func (r *Retriever) retrieve(ctx context.Context, ownerID, query string, k int, documentIDs []string, minScore *float64) (*models.RetrievalResult, error) {
	start := time.Now()
	result := &models.RetrievalResult{Chunks: []models.ScoredChunk{}}
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner is required", models.ErrValidation)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", models.ErrValidation)
	}
	if k <= 0 {
		return result, nil
	}

	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	qctx, cancel := r.withTimeout(ctx)
	matches, err := r.index.Query(qctx, vector.Query{
		OwnerID:     ownerID,
		Vector:      vec,
		K:           k,
		DocumentIDs: documentIDs,
		MinScore:    minScore,
	})
	cancel()
	if err != nil {
		if errors.Is(err, models.ErrVectorStore) || errors.Is(err, models.ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", models.ErrVectorStore, err)
	}

	if len(matches) > 0 {
		if result.Chunks, err = r.hydrate(ctx, ownerID, matches); err != nil {
			return nil, err
		}
	}
	result.QueryTime = time.Since(start).Milliseconds()
	r.logger.Debug("retrieval finished",
		zap.String("owner_id", ownerID),
		zap.Int("matches", len(matches)),
		zap.Int("chunks", len(result.Chunks)),
		zap.Int64("query_time_ms", result.QueryTime))
	return result, nil
}

// hydrate loads chunk rows for matches, preserving match order. Matches
// without a row, or whose row belongs to someone else, are dropped.
func (r *Retriever) hydrate(ctx context.Context, ownerID string, matches []vector.Match) ([]models.ScoredChunk, error) {
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ChunkID
	}
	rows, err := r.store.GetChunksByIDs(ctx, ownerID, ids)
	if err != nil {
		return nil, err
	}

	filenames := make(map[string]string)
	out := make([]models.ScoredChunk, 0, len(matches))
	for _, m := range matches {
		chunk, ok := rows[m.ChunkID]
		if !ok || chunk.OwnerID != ownerID {
			r.logger.Debug("dropping unhydrated match", zap.String("chunk_id", m.ChunkID))
			continue
		}
		name, seen := filenames[chunk.DocumentID]
		if !seen {
			doc, err := r.store.GetDocument(ctx, chunk.DocumentID)
			switch {
			case errors.Is(err, models.ErrNotFound):
				filenames[chunk.DocumentID] = ""
				continue
			case err != nil:
				return nil, err
			case doc.OwnerID != ownerID:
				return nil, fmt.Errorf("%w: chunk %s crosses owners", models.ErrAuthorization, chunk.ID)
			}
			name = doc.Filename
			filenames[chunk.DocumentID] = name
		}
		if name == "" {
			continue
		}
		out = append(out, models.ScoredChunk{Chunk: chunk, Score: m.Score, Filename: name})
	}
	return out, nil
}

func (r *Retriever) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}
