package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
)

// Importer is the part of the ingestion pipeline the inbox drives.
type Importer interface {
	Get(ctx context.Context, ownerID, docID string) (*models.Document, error)
	Import(ctx context.Context, ownerID, docID, filename string, data []byte) (*models.Document, error)
	IngestAsync(ctx context.Context, ownerID, docID string)
	Delete(ctx context.Context, ownerID, docID string) error
}

// Inbox imports files dropped into the configured directories on behalf of a
// single owner and ingests them. Each file maps to a stable document ID, so
// editing a file replaces its document and deleting it removes the document.
type Inbox struct {
	importer Importer
	ownerID  string
	maxBytes int64
	watcher  *Watcher
	logger   *zap.Logger

	mu  sync.Mutex
	ctx context.Context
}

// NewInbox builds an inbox for cfg.Inbox. Options are applied to the
// underlying Watcher.
func NewInbox(importer Importer, cfg *config.Config, opts ...Option) *Inbox {
	in := &Inbox{
		importer: importer,
		ownerID:  cfg.Inbox.OwnerID,
		maxBytes: cfg.Server.MaxUploadBytes,
		ctx:      context.Background(),
	}
	in.watcher = NewWatcher(cfg.Inbox.Directories, cfg.Inbox.Extensions, cfg.Inbox.RecursiveOrDefault(),
		in.importFile, in.removeFile, opts...)
	in.logger = in.watcher.logger
	return in
}

// Start begins watching and imports files that changed while the service
// was down. Imports and deletions run under ctx.
func (in *Inbox) Start(ctx context.Context) error {
	in.mu.Lock()
	in.ctx = ctx
	in.mu.Unlock()
	if err := in.watcher.Start(ctx); err != nil {
		return err
	}
	go in.watcher.ScanExisting()
	return nil
}

// Stop stops watching. Imports already handed to the pipeline keep running.
func (in *Inbox) Stop() {
	in.watcher.Stop()
}

// Directories returns the watched directories.
func (in *Inbox) Directories() []string {
	return in.watcher.Directories()
}

// AddDirectory watches another directory and imports what it holds.
func (in *Inbox) AddDirectory(dir string) error {
	return in.watcher.AddDirectory(dir, true)
}

// RemoveDirectory stops watching dir.
func (in *Inbox) RemoveDirectory(dir string) error {
	return in.watcher.RemoveDirectory(dir)
}

// OwnerID returns the owner inbox documents are imported for.
func (in *Inbox) OwnerID() string {
	return in.ownerID
}

func (in *Inbox) context() context.Context {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.ctx
}

// importFile imports path unless the stored document is already current.
func (in *Inbox) importFile(path string) {
	ctx := in.context()
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return
	}
	log := in.logger.With(zap.String("path", abs))
	if info.Size() == 0 {
		log.Debug("inbox skipping empty file")
		return
	}
	if in.maxBytes > 0 && info.Size() > in.maxBytes {
		log.Warn("inbox file too large", zap.Int64("size_bytes", info.Size()), zap.Int64("limit", in.maxBytes))
		return
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		log.Warn("inbox read failed", zap.Error(err))
		return
	}
	docID := fileid.InboxDocID(in.ownerID, abs)
	if current(ctx, in.importer, in.ownerID, docID, data) {
		log.Debug("inbox file unchanged", zap.String("document_id", docID))
		return
	}

	doc, err := in.importer.Import(ctx, in.ownerID, docID, filepath.Base(abs), data)
	switch {
	case errors.Is(err, models.ErrIngestInProgress):
		log.Debug("inbox document busy, retrying", zap.String("document_id", docID))
		in.watcher.Requeue(abs)
		return
	case err != nil:
		log.Warn("inbox import failed", zap.Error(err))
		return
	}
	log.Info("inbox file imported", zap.String("document_id", doc.ID))
	in.importer.IngestAsync(ctx, in.ownerID, doc.ID)
}

// current reports whether the stored document already reflects the file: it
// ingested successfully from the same bytes.
func current(ctx context.Context, importer Importer, ownerID, docID string, data []byte) bool {
	doc, err := importer.Get(ctx, ownerID, docID)
	if err != nil {
		return false
	}
	return doc.Status == models.StatusIngested && doc.ContentHash == fileid.ContentHash(data)
}

func (in *Inbox) removeFile(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	docID := fileid.InboxDocID(in.ownerID, abs)
	err = in.importer.Delete(in.context(), in.ownerID, docID)
	switch {
	case err == nil:
		in.logger.Info("inbox document removed", zap.String("path", abs), zap.String("document_id", docID))
	case errors.Is(err, models.ErrNotFound):
	default:
		in.logger.Warn("inbox delete failed", zap.String("path", abs), zap.Error(err))
	}
}
