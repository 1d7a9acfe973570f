package indexer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kotae/internal/blob"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

const presignExpiry = time.Hour

// BatchEmbedder embeds chunk texts, preserving order.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Pipeline uploads documents and runs extract -> chunk -> embed -> index.
type Pipeline struct {
	store     storage.Storage
	blobs     blob.Store
	extractor *extract.Extractor
	chunker   *Chunker
	embedder  BatchEmbedder
	index     vector.VectorIndex

	batchSize      int
	workers        int
	chunkRetries   int
	maxUploadBytes int64
	blobTimeout    time.Duration
	vectorTimeout  time.Duration

	logger *zap.Logger
	wg     sync.WaitGroup
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets the logger for ingestion events.
func WithLogger(l *zap.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline wires the ingestion pipeline from its collaborators.
func NewPipeline(
	store storage.Storage,
	blobs blob.Store,
	extractor *extract.Extractor,
	chunker *Chunker,
	embedder BatchEmbedder,
	index vector.VectorIndex,
	cfg *config.Config,
	opts ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		store:          store,
		blobs:          blobs,
		extractor:      extractor,
		chunker:        chunker,
		embedder:       embedder,
		index:          index,
		batchSize:      max(cfg.Ingest.BatchSize, 1),
		workers:        max(cfg.Ingest.Workers, 1),
		chunkRetries:   max(cfg.Ingest.ChunkRetries, 0),
		maxUploadBytes: cfg.Server.MaxUploadBytes,
		blobTimeout:    cfg.Blob.Timeout,
		vectorTimeout:  cfg.Vector.Timeout,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Upload stores the bytes and records a new document with status uploaded.
func (p *Pipeline) Upload(ctx context.Context, ownerID, filename string, data []byte) (*models.Document, error) {
	return p.create(ctx, ownerID, fileid.NewID(), filename, data)
}

// Import creates or replaces the document with the given ID. It is used for
// files whose identity is known up front, such as inbox files.
func (p *Pipeline) Import(ctx context.Context, ownerID, docID, filename string, data []byte) (*models.Document, error) {
	existing, err := p.store.GetDocument(ctx, docID)
	switch {
	case errors.Is(err, models.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		if existing.OwnerID != ownerID {
			return nil, fmt.Errorf("%w: document %s", models.ErrAuthorization, docID)
		}
		if err := p.Delete(ctx, ownerID, docID); err != nil {
			return nil, fmt.Errorf("replace document: %w", err)
		}
	}
	return p.create(ctx, ownerID, docID, filename, data)
}

// PresignedUpload is a direct-to-object-store upload slot.
type PresignedUpload struct {
	URL       string
	ObjectKey string
	ExpiresIn time.Duration
}

// PresignUpload reserves a key under the owner's prefix and returns a URL the
// client PUTs the file to. The document is recorded later by Register.
func (p *Pipeline) PresignUpload(ctx context.Context, ownerID, filename string) (*PresignedUpload, error) {
	if _, err := checkUpload(ownerID, filename); err != nil {
		return nil, err
	}
	key, err := blob.NewKey(ownerID, filename)
	if err != nil {
		return nil, err
	}
	bctx, cancel := withTimeout(ctx, p.blobTimeout)
	defer cancel()
	url, err := p.blobs.PresignPut(bctx, key, presignExpiry)
	if err != nil {
		return nil, err
	}
	return &PresignedUpload{URL: url, ObjectKey: key, ExpiresIn: presignExpiry}, nil
}

// Register records a document for an object the client already uploaded
// through a presigned URL. The key must sit under the owner's prefix.
func (p *Pipeline) Register(ctx context.Context, ownerID, key, filename string) (*models.Document, error) {
	format, err := checkUpload(ownerID, filename)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(key, ownerID+"/") {
		return nil, fmt.Errorf("%w: object %q is outside the caller's prefix", models.ErrAuthorization, key)
	}
	bctx, cancel := withTimeout(ctx, p.blobTimeout)
	size, err := p.blobs.Size(bctx, key)
	cancel()
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: object %s has not been uploaded", models.ErrNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	if err := p.checkSize(size); err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:         fileid.NewID(),
		OwnerID:    ownerID,
		Filename:   filename,
		Format:     format,
		StorageKey: key,
		SizeBytes:  size,
		Status:     models.StatusUploaded,
	}
	if err := p.store.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}
	p.logger.Info("document registered",
		zap.String("document_id", doc.ID),
		zap.String("owner_id", ownerID),
		zap.String("storage_key", key),
		zap.Int64("size_bytes", size))
	return doc, nil
}

// checkUpload validates the owner and filename and returns the format.
func checkUpload(ownerID, filename string) (string, error) {
	if strings.TrimSpace(ownerID) == "" {
		return "", fmt.Errorf("%w: owner is required", models.ErrValidation)
	}
	if strings.TrimSpace(filename) == "" {
		return "", fmt.Errorf("%w: filename is required", models.ErrValidation)
	}
	format := extract.FormatFromFilename(filename)
	if !extract.Supported(format) {
		return "", fmt.Errorf("%w: %q (supported: %s)", models.ErrUnsupportedFormat, format, strings.Join(extract.Formats(), ", "))
	}
	return format, nil
}

func (p *Pipeline) checkSize(n int64) error {
	if n == 0 {
		return fmt.Errorf("%w: file is empty", models.ErrValidation)
	}
	if p.maxUploadBytes > 0 && n > p.maxUploadBytes {
		return fmt.Errorf("%w: file is %d bytes, limit is %d", models.ErrValidation, n, p.maxUploadBytes)
	}
	return nil
}

func (p *Pipeline) create(ctx context.Context, ownerID, docID, filename string, data []byte) (*models.Document, error) {
	format, err := checkUpload(ownerID, filename)
	if err != nil {
		return nil, err
	}
	if err := p.checkSize(int64(len(data))); err != nil {
		return nil, err
	}

	bctx, cancel := withTimeout(ctx, p.blobTimeout)
	key, err := p.blobs.Put(bctx, ownerID, filename, data)
	cancel()
	if err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:          docID,
		OwnerID:     ownerID,
		Filename:    filename,
		Format:      format,
		StorageKey:  key,
		SizeBytes:   int64(len(data)),
		ContentHash: fileid.ContentHash(data),
		Status:      models.StatusUploaded,
	}
	if err := p.store.CreateDocument(ctx, doc); err != nil {
		p.deleteBlob(ctx, key)
		return nil, err
	}
	p.logger.Info("document uploaded",
		zap.String("document_id", doc.ID),
		zap.String("owner_id", ownerID),
		zap.String("format", format),
		zap.Int64("size_bytes", doc.SizeBytes))
	return doc, nil
}

// Get returns one of the owner's documents.
func (p *Pipeline) Get(ctx context.Context, ownerID, docID string) (*models.Document, error) {
	doc, err := p.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: document %s", models.ErrAuthorization, docID)
	}
	return doc, nil
}

// List returns the owner's documents, newest first.
func (p *Pipeline) List(ctx context.Context, ownerID string, offset, limit int) ([]*models.Document, error) {
	return p.store.ListDocuments(ctx, ownerID, offset, limit)
}

// Ingest runs one ingestion of the document. Precondition failures (unknown
// document, wrong owner, run already active) are returned as errors; failures
// of the run itself are recorded on the returned document.
func (p *Pipeline) Ingest(ctx context.Context, ownerID, docID string) (*models.Document, error) {
	if _, err := p.Get(ctx, ownerID, docID); err != nil {
		return nil, err
	}
	doc, err := p.store.StartIngestion(ctx, docID)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	outcome := p.run(ctx, doc)

	// The outcome must be recorded even if the caller went away.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	doc, err = p.store.FinishIngestion(fctx, docID, outcome)
	if err != nil {
		return nil, err
	}

	fields := []zap.Field{
		zap.String("document_id", doc.ID),
		zap.String("status", string(doc.Status)),
		zap.Int("chunks", doc.ChunkCount),
		zap.Int("failed_chunks", doc.FailedChunks),
		zap.Duration("took", time.Since(start)),
	}
	if doc.Status == models.StatusFailed {
		p.logger.Info("document ingestion failed", append(fields, zap.String("error", doc.Error))...)
	} else {
		p.logger.Info("document ingested", fields...)
	}
	return doc, nil
}

// IngestAsync runs Ingest in the background. The run outlives ctx's
// cancellation; use Wait to drain pending runs.
func (p *Pipeline) IngestAsync(ctx context.Context, ownerID, docID string) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if _, err := p.Ingest(context.WithoutCancel(ctx), ownerID, docID); err != nil {
			p.logger.Warn("background ingestion not started",
				zap.String("document_id", docID), zap.Error(err))
		}
	}()
}

// Wait blocks until all background ingestions have finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Delete removes the document's vectors, chunks, record and blob. The
// document is first claimed with the same compare-and-set that starts an
// ingestion, so no run can begin while it is being torn down.
func (p *Pipeline) Delete(ctx context.Context, ownerID, docID string) error {
	doc, err := p.Get(ctx, ownerID, docID)
	if err != nil {
		return err
	}
	if _, err := p.store.StartIngestion(ctx, docID); err != nil {
		return err
	}
	vctx, cancel := withTimeout(ctx, p.vectorTimeout)
	err = p.index.DeleteDocument(vctx, ownerID, docID)
	cancel()
	if err != nil {
		p.release(ctx, doc, fmt.Sprintf("delete failed: %v", err))
		return err
	}
	if err := p.store.DeleteDocument(ctx, docID); err != nil {
		p.release(ctx, doc, fmt.Sprintf("delete failed: %v", err))
		return err
	}
	p.deleteBlob(ctx, doc.StorageKey)
	p.logger.Info("document deleted", zap.String("document_id", docID))
	return nil
}

// release ends a claim taken by Delete. Some vectors may already be gone, so
// the document is left failed and can be re-ingested or deleted again.
func (p *Pipeline) release(ctx context.Context, doc *models.Document, reason string) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	_, err := p.store.FinishIngestion(fctx, doc.ID, storage.IngestionOutcome{
		Status:       models.StatusFailed,
		ChunkCount:   doc.ChunkCount,
		FailedChunks: doc.FailedChunks,
		Error:        reason,
	})
	if err != nil {
		p.logger.Warn("failed to release document after delete error",
			zap.String("document_id", doc.ID), zap.Error(err))
	}
}

func (p *Pipeline) deleteBlob(ctx context.Context, key string) {
	bctx, cancel := withTimeout(context.WithoutCancel(ctx), p.blobTimeout)
	defer cancel()
	if err := p.blobs.Delete(bctx, key); err != nil {
		p.logger.Warn("failed to delete blob", zap.String("key", key), zap.Error(err))
	}
}

// run performs one ingestion and reports its outcome.
func (p *Pipeline) run(ctx context.Context, doc *models.Document) storage.IngestionOutcome {
	failed := func(err error) storage.IngestionOutcome {
		return storage.IngestionOutcome{Status: models.StatusFailed, Error: err.Error()}
	}

	if err := p.clearChunks(ctx, doc); err != nil {
		return failed(fmt.Errorf("remove previous chunks: %w", err))
	}

	bctx, cancel := withTimeout(ctx, p.blobTimeout)
	data, err := p.blobs.Get(bctx, doc.StorageKey)
	cancel()
	if err != nil {
		return failed(err)
	}

	res, err := p.extractor.Extract(data, doc.Format)
	if err != nil {
		return failed(err)
	}
	if res.Empty {
		return failed(fmt.Errorf("%w: no extractable text", models.ErrExtractionFailure))
	}

	chunks := p.chunker.Chunk(doc, res.Text)
	pending := chunks
	var lastErr error
	for attempt := 0; attempt <= p.chunkRetries && len(pending) > 0; attempt++ {
		if attempt > 0 {
			p.logger.Debug("retrying failed chunks",
				zap.String("document_id", doc.ID),
				zap.Int("attempt", attempt),
				zap.Int("chunks", len(pending)))
		}
		pending, lastErr = p.indexChunks(ctx, pending)
		if ctx.Err() != nil {
			break
		}
	}

	indexed := len(chunks) - len(pending)
	if len(pending) > 0 {
		msg := fmt.Sprintf("%d of %d chunks failed", len(pending), len(chunks))
		if lastErr != nil {
			msg += ": " + lastErr.Error()
		}
		return storage.IngestionOutcome{
			Status:       models.StatusFailed,
			ChunkCount:   indexed,
			FailedChunks: len(pending),
			Error:        msg,
		}
	}
	return storage.IngestionOutcome{Status: models.StatusIngested, ChunkCount: indexed}
}

// clearChunks removes vectors first so no vector outlives its chunk row.
func (p *Pipeline) clearChunks(ctx context.Context, doc *models.Document) error {
	vctx, cancel := withTimeout(ctx, p.vectorTimeout)
	err := p.index.DeleteDocument(vctx, doc.OwnerID, doc.ID)
	cancel()
	if err != nil {
		return err
	}
	return p.store.DeleteChunksByDocumentID(ctx, doc.ID)
}

// indexChunks embeds and indexes chunks in batches on a bounded worker pool
// and returns the chunks that did not make it, with the last batch error.
func (p *Pipeline) indexChunks(ctx context.Context, chunks []*models.Chunk) ([]*models.Chunk, error) {
	var (
		mu      sync.Mutex
		failed  []*models.Chunk
		lastErr error
	)
	var g errgroup.Group
	g.SetLimit(p.workers)
	for start := 0; start < len(chunks); start += p.batchSize {
		batch := chunks[start:min(start+p.batchSize, len(chunks))]
		g.Go(func() error {
			if err := p.indexBatch(ctx, batch); err != nil {
				mu.Lock()
				failed = append(failed, batch...)
				lastErr = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	// Keep retry order deterministic.
	sortByIndex(failed)
	return failed, lastErr
}

// indexBatch makes a batch queryable or leaves no trace of it: rows are
// written before vectors and removed again if the vector write fails.
func (p *Pipeline) indexBatch(ctx context.Context, batch []*models.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}
	vecs, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}
	if len(vecs) != len(batch) {
		return fmt.Errorf("%w: got %d embeddings for %d chunks", models.ErrEmbeddingProvider, len(vecs), len(batch))
	}
	for i, c := range batch {
		c.Embedding = vecs[i]
	}
	if err := p.store.UpsertChunks(ctx, batch); err != nil {
		clearEmbeddings(batch)
		return err
	}

	entries := make([]vector.Entry, len(batch))
	ids := make([]string, len(batch))
	for i, c := range batch {
		entries[i] = vector.Entry{ChunkID: c.ID, OwnerID: c.OwnerID, DocumentID: c.DocumentID, Index: c.Index, Vector: c.Embedding}
		ids[i] = c.ID
	}
	vctx, cancel := withTimeout(ctx, p.vectorTimeout)
	err = p.index.Upsert(vctx, entries...)
	cancel()
	if err != nil {
		p.rollbackBatch(ctx, ids)
		clearEmbeddings(batch)
		return err
	}
	return nil
}

func (p *Pipeline) rollbackBatch(ctx context.Context, ids []string) {
	cctx, cancel := withTimeout(context.WithoutCancel(ctx), p.vectorTimeout)
	defer cancel()
	if err := p.index.Delete(cctx, ids); err != nil {
		p.logger.Warn("failed to roll back vectors", zap.Int("chunks", len(ids)), zap.Error(err))
	}
	if err := p.store.DeleteChunks(cctx, ids); err != nil {
		p.logger.Warn("failed to roll back chunk rows", zap.Int("chunks", len(ids)), zap.Error(err))
	}
}

func clearEmbeddings(chunks []*models.Chunk) {
	for _, c := range chunks {
		c.Embedding = nil
	}
}

func sortByIndex(chunks []*models.Chunk) {
	slices.SortFunc(chunks, func(a, b *models.Chunk) int { return a.Index - b.Index })
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
