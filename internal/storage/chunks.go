package storage

import (
	"context"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

// UpsertChunks inserts or replaces chunks in a single transaction.
func (s *SQLiteStorage) UpsertChunks(ctx context.Context, chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin chunk upsert", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, document_id, owner_id, chunk_index, content, token_count, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			token_count = excluded.token_count,
			embedding = excluded.embedding`,
	)
	if err != nil {
		return storageErr("prepare chunk upsert", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, c := range chunks {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		var embedding any
		if len(c.Embedding) > 0 {
			embedding = encodeEmbedding(c.Embedding)
		}
		_, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.OwnerID, c.Index, c.Content,
			c.TokenCount, embedding, c.CreatedAt)
		if err != nil {
			return storageErr("upsert chunk", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit chunk upsert", err)
	}
	return nil
}

// DeleteChunks removes chunks by ID.
func (s *SQLiteStorage) DeleteChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM chunks WHERE id IN (`+placeholders(len(ids))+`)`, stringArgs(ids)...)
	if err != nil {
		return storageErr("delete chunks", err)
	}
	return nil
}

// DeleteChunksByDocumentID removes all chunks for a document.
func (s *SQLiteStorage) DeleteChunksByDocumentID(ctx context.Context, docID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, docID); err != nil {
		return storageErr("delete document chunks", err)
	}
	return nil
}

// GetChunksByDocumentID returns all chunks for a document ordered by chunk_index.
func (s *SQLiteStorage) GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, owner_id, chunk_index, content, token_count, created_at
		 FROM chunks WHERE document_id = ? ORDER BY chunk_index`,
		docID,
	)
	if err != nil {
		return nil, storageErr("get document chunks", err)
	}
	defer rows.Close()

	var chunks []*models.Chunk
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.OwnerID, &c.Index, &c.Content, &c.TokenCount, &c.CreatedAt); err != nil {
			return nil, storageErr("scan chunk", err)
		}
		chunks = append(chunks, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("get document chunks", err)
	}
	return chunks, nil
}

// GetChunksByIDs hydrates chunk rows without their embeddings.
func (s *SQLiteStorage) GetChunksByIDs(ctx context.Context, ownerID string, ids []string) (map[string]*models.Chunk, error) {
	out := make(map[string]*models.Chunk, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := append([]any{ownerID}, stringArgs(ids)...)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, owner_id, chunk_index, content, token_count, created_at
		 FROM chunks WHERE owner_id = ? AND id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, storageErr("get chunks", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.OwnerID, &c.Index, &c.Content, &c.TokenCount, &c.CreatedAt); err != nil {
			return nil, storageErr("scan chunk", err)
		}
		out[c.ID] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("get chunks", err)
	}
	return out, nil
}

// ForEachChunk calls fn for every embedded chunk, in document order.
// Returning an error from fn stops the iteration.
func (s *SQLiteStorage) ForEachChunk(ctx context.Context, fn func(*models.Chunk) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, owner_id, chunk_index, token_count, embedding
		 FROM chunks WHERE embedding IS NOT NULL ORDER BY document_id, chunk_index`)
	if err != nil {
		return storageErr("scan chunks", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c models.Chunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.OwnerID, &c.Index, &c.TokenCount, &blob); err != nil {
			return storageErr("scan chunk", err)
		}
		if c.Embedding, err = decodeEmbedding(blob); err != nil {
			return storageErr("decode embedding of chunk "+c.ID, err)
		}
		if err := fn(&c); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return storageErr("scan chunks", err)
	}
	return nil
}
