package vector

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

// Payload fields stored with every point.
const (
	payloadOwnerID    = "owner_id"
	payloadDocumentID = "document_id"
	payloadChunkIndex = "chunk_index"
)

// upsertBatchSize bounds the number of points per Qdrant request.
const upsertBatchSize = 100

// QdrantIndex stores vectors in a Qdrant collection. Every query carries a
// must-match filter on owner_id, so isolation is enforced server-side.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dimensions int
	logger     *zap.Logger
}

// NewQdrantIndex connects to Qdrant and makes sure the collection and its
// payload indexes exist.
func NewQdrantIndex(ctx context.Context, cfg *config.QdrantConfig, dimensions int, logger *zap.Logger) (*QdrantIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create qdrant client: %w", models.ErrVectorStore, err)
	}
	idx := &QdrantIndex{
		client:     client,
		collection: cfg.Collection,
		dimensions: dimensions,
		logger:     logger,
	}
	if err := idx.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %w", models.ErrVectorStore, err)
	}
	return idx, nil
}

// Type returns the index type identifier.
func (q *QdrantIndex) Type() string {
	return string(IndexTypeQdrant)
}

func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	collections, err := q.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	if slices.Contains(collections, q.collection) {
		return nil
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", q.collection, err)
	}
	indexes := []struct {
		field string
		typ   qdrant.FieldType
	}{
		{payloadOwnerID, qdrant.FieldType_FieldTypeKeyword},
		{payloadDocumentID, qdrant.FieldType_FieldTypeKeyword},
		{payloadChunkIndex, qdrant.FieldType_FieldTypeInteger},
	}
	for _, ix := range indexes {
		_, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.collection,
			FieldName:      ix.field,
			FieldType:      ix.typ.Enum(),
		})
		if err != nil {
			return fmt.Errorf("create index for field %s: %w", ix.field, err)
		}
	}
	q.logger.Info("created qdrant collection",
		zap.String("collection", q.collection),
		zap.Int("dimensions", q.dimensions))
	return nil
}

// Upsert writes entries in batches, retrying transient failures.
func (q *QdrantIndex) Upsert(ctx context.Context, entries ...Entry) error {
	for _, e := range entries {
		if err := validateEntry(e, q.dimensions); err != nil {
			return err
		}
	}
	for start := 0; start < len(entries); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(entries))
		points := make([]*qdrant.PointStruct, 0, end-start)
		for _, e := range entries[start:end] {
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(e.ChunkID),
				Vectors: qdrant.NewVectors(e.Vector...),
				Payload: qdrant.NewValueMap(map[string]any{
					payloadOwnerID:    e.OwnerID,
					payloadDocumentID: e.DocumentID,
					payloadChunkIndex: e.Index,
				}),
			})
		}
		if err := q.upsertWithRetry(ctx, points); err != nil {
			return fmt.Errorf("%w: upsert batch %d-%d: %w", models.ErrVectorStore, start, end, err)
		}
	}
	return nil
}

func (q *QdrantIndex) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 10 * time.Second

	operation := func() error {
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

// tieSlack is how many points past K are fetched so chunks tied with the K-th
// score can be re-ordered by index before the cut.
const tieSlack = 16

// Query searches the owner's points. Qdrant orders by score only, so extra
// points are fetched while the K-th score ties past the fetched window, then
// the result is re-sorted to apply the chunk-index tie break and cut to K.
func (q *QdrantIndex) Query(ctx context.Context, query Query) ([]Match, error) {
	if err := validateQuery(query, q.dimensions); err != nil {
		return nil, err
	}
	if query.K <= 0 {
		return nil, nil
	}
	must := []*qdrant.Condition{qdrant.NewMatch(payloadOwnerID, query.OwnerID)}
	if len(query.DocumentIDs) > 0 {
		must = append(must, qdrant.NewMatchKeywords(payloadDocumentID, query.DocumentIDs...))
	}
	req := &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(query.Vector...),
		Filter:         &qdrant.Filter{Must: must},
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if query.MinScore != nil {
		req.ScoreThreshold = qdrant.PtrOf(float32(*query.MinScore))
	}
	var results []*qdrant.ScoredPoint
	for limit := query.K + tieSlack; ; limit *= 2 {
		req.Limit = qdrant.PtrOf(uint64(limit))
		var err error
		results, err = q.client.Query(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("%w: query: %w", models.ErrVectorStore, err)
		}
		if !tiedPastWindow(results, query.K, limit) {
			break
		}
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		// Qdrant already filtered on owner; a mismatch means a corrupted payload.
		if r.Payload[payloadOwnerID].GetStringValue() != query.OwnerID {
			q.logger.Error("qdrant returned a point of another owner", zap.String("chunk_id", r.Id.GetUuid()))
			continue
		}
		matches = append(matches, Match{
			ChunkID:    r.Id.GetUuid(),
			DocumentID: r.Payload[payloadDocumentID].GetStringValue(),
			Index:      int(r.Payload[payloadChunkIndex].GetIntegerValue()),
			Score:      float64(r.Score),
		})
	}
	return topMatches(matches, query.K), nil
}

// tiedPastWindow reports whether a full window of limit points ends on the
// k-th score, in which case more points may share it.
func tiedPastWindow(results []*qdrant.ScoredPoint, k, limit int) bool {
	if len(results) < limit || k > len(results) {
		return false
	}
	return results[len(results)-1].GetScore() == results[k-1].GetScore()
}

// Delete removes points by chunk ID.
func (q *QdrantIndex) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	ids := make([]*qdrant.PointId, len(chunkIDs))
	for i, id := range chunkIDs {
		ids[i] = qdrant.NewIDUUID(id)
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(ids...),
	})
	if err != nil {
		return fmt.Errorf("%w: delete points: %w", models.ErrVectorStore, err)
	}
	return nil
}

// DeleteDocument removes every point of the owner's document.
func (q *QdrantIndex) DeleteDocument(ctx context.Context, ownerID, documentID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch(payloadOwnerID, ownerID),
				qdrant.NewMatch(payloadDocumentID, documentID),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: delete document %s: %w", models.ErrVectorStore, documentID, err)
	}
	return nil
}

// Count returns the exact number of points in the collection.
func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: count: %w", models.ErrVectorStore, err)
	}
	return int(n), nil
}

// Close closes the gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}
