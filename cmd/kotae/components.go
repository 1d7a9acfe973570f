package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/blob"
	"github.com/hyperjump/kotae/internal/chat"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/internal/watcher"
)

// Components holds initialized services.
type Components struct {
	Storage   storage.Storage
	Blobs     blob.Store
	Embedder  *embedding.Gateway
	Index     vector.VectorIndex
	Generator llm.Generator
	Pipeline  *indexer.Pipeline
	Retriever *search.Retriever
	Chat      *chat.Orchestrator
	Inbox     *watcher.Inbox
}

// Services returns the set handed to the HTTP server.
func (c *Components) Services() server.Services {
	return server.Services{
		Pipeline:  c.Pipeline,
		Retriever: c.Retriever,
		Chat:      c.Chat,
		Storage:   c.Storage,
		Index:     c.Index,
		Blobs:     c.Blobs,
		Inbox:     c.Inbox,
	}
}

// Close waits for background ingestion, then releases every resource.
func (c *Components) Close() {
	if c.Pipeline != nil {
		c.Pipeline.Wait()
	}
	if c.Generator != nil {
		_ = c.Generator.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Index != nil {
		_ = c.Index.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

// initializeComponents wires every service from cfg. Documents left in
// processing by a previous run are marked failed, and an in-memory vector
// index is rebuilt from the stored chunk embeddings.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *Components, err error) {
	c := &Components{}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	if c.Storage, err = storage.NewSQLiteStorage(cfg.Storage.DatabasePath); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if c.Blobs, err = blob.New(ctx, &cfg.Blob); err != nil {
		return nil, fmt.Errorf("failed to initialize blob store: %w", err)
	}

	provider, err := embedding.NewProvider(&cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	if c.Embedder, err = embedding.NewGateway(provider, &cfg.Embedding, embedding.WithLogger(logger)); err != nil {
		_ = provider.Close()
		return nil, fmt.Errorf("failed to initialize embedding gateway: %w", err)
	}

	if c.Index, err = vector.NewVectorIndex(ctx, &cfg.Vector, cfg.Embedding.Dimensions, logger); err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	if c.Generator, err = llm.New(&cfg.Generation); err != nil {
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}

	chunker, err := indexer.NewChunker(cfg.Chunking.ChunkSize, cfg.Chunking.OverlapOrDefault())
	if err != nil {
		return nil, err
	}
	c.Pipeline = indexer.NewPipeline(c.Storage, c.Blobs, extract.NewExtractor(), chunker, c.Embedder, c.Index, cfg,
		indexer.WithLogger(logger))
	c.Retriever = search.NewRetriever(c.Embedder, c.Index, c.Storage,
		search.WithLogger(logger),
		search.WithMinScore(cfg.Vector.MinScore),
		search.WithTimeout(cfg.Vector.Timeout))
	c.Chat = chat.NewOrchestrator(c.Storage, c.Retriever, c.Generator, cfg, chat.WithLogger(logger))

	if len(cfg.Inbox.Directories) > 0 {
		c.Inbox = watcher.NewInbox(c.Pipeline, cfg, watcher.WithLogger(logger))
	}

	if n, err := c.Storage.FailInterrupted(ctx, "ingestion interrupted by restart"); err != nil {
		logger.Warn("recover interrupted ingestions failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("marked interrupted ingestions as failed", zap.Int64("documents", n))
	}
	if !vector.Persistent(c.Index) {
		n, err := indexer.WarmIndex(ctx, c.Storage, c.Index)
		if err != nil {
			return nil, fmt.Errorf("failed to warm vector index: %w", err)
		}
		logger.Info("vector index warmed", zap.Int("vectors", n))
	}
	return c, nil
}
