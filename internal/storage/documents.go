package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

const documentColumns = `id, owner_id, filename, format, storage_key, size_bytes, content_hash,
	status, chunk_count, failed_chunks, error, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var doc models.Document
	err := row.Scan(&doc.ID, &doc.OwnerID, &doc.Filename, &doc.Format, &doc.StorageKey,
		&doc.SizeBytes, &doc.ContentHash, &doc.Status, &doc.ChunkCount, &doc.FailedChunks, &doc.Error,
		&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// CreateDocument inserts a document, registering its owner first.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	if !doc.Status.Valid() {
		return fmt.Errorf("%w: unknown document status %q", models.ErrValidation, doc.Status)
	}
	if err := s.EnsureUser(ctx, doc.OwnerID); err != nil {
		return err
	}

	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.OwnerID, doc.Filename, doc.Format, doc.StorageKey, doc.SizeBytes, doc.ContentHash,
		doc.Status, doc.ChunkCount, doc.FailedChunks, doc.Error, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return storageErr("create document", err)
	}
	return nil
}

// GetDocument returns a document by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("document", id)
	}
	if err != nil {
		return nil, storageErr("get document", err)
	}
	return doc, nil
}

// ListDocuments returns the owner's documents, newest first.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, ownerID string, offset, limit int) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE owner_id = ? ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		ownerID, limit, offset,
	)
	if err != nil {
		return nil, storageErr("list documents", err)
	}
	defer rows.Close()

	docs := []*models.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, storageErr("scan document", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list documents", err)
	}
	return docs, nil
}

// DeleteDocument removes a document; its chunks go with it.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return storageErr("delete document", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return notFound("document", id)
	}
	return nil
}

// StartIngestion compare-and-sets the status to processing.
func (s *SQLiteStorage) StartIngestion(ctx context.Context, id string) (*models.Document, error) {
	from := models.IngestableStatuses
	args := []any{models.StatusProcessing, time.Now().UTC(), id}
	for _, st := range from {
		args = append(args, st)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, error = '', failed_chunks = 0, updated_at = ?
		 WHERE id = ? AND status IN (`+placeholders(len(from))+`)`, args...)
	if err != nil {
		return nil, storageErr("start ingestion", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		doc, err := s.GetDocument(ctx, id)
		if err != nil {
			return nil, err
		}
		if doc.Status == models.StatusProcessing {
			return nil, fmt.Errorf("%w: %s", models.ErrIngestInProgress, id)
		}
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, doc.Status, models.StatusProcessing)
	}
	return s.GetDocument(ctx, id)
}

// FinishIngestion compare-and-sets the status from processing to the outcome.
func (s *SQLiteStorage) FinishIngestion(ctx context.Context, id string, outcome IngestionOutcome) (*models.Document, error) {
	if !models.StatusProcessing.CanTransition(outcome.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, models.StatusProcessing, outcome.Status)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, chunk_count = ?, failed_chunks = ?, error = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		outcome.Status, outcome.ChunkCount, outcome.FailedChunks, outcome.Error, time.Now().UTC(),
		id, models.StatusProcessing,
	)
	if err != nil {
		return nil, storageErr("finish ingestion", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		doc, err := s.GetDocument(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, doc.Status, outcome.Status)
	}
	return s.GetDocument(ctx, id)
}

// FailInterrupted moves every processing document to failed.
func (s *SQLiteStorage) FailInterrupted(ctx context.Context, reason string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, error = ?, updated_at = ? WHERE status = ?`,
		models.StatusFailed, reason, time.Now().UTC(), models.StatusProcessing)
	if err != nil {
		return 0, storageErr("fail interrupted documents", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
