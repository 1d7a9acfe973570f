// Package models defines core data structures for documents, chunks, conversations,
// and retrieval results.
package models

import "time"

// DocumentStatus is the ingestion lifecycle state of a document.
type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusIngested   DocumentStatus = "ingested"
	StatusFailed     DocumentStatus = "failed"
)

// Valid reports whether s is a known status.
func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusUploaded, StatusProcessing, StatusIngested, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether a document may move from s to next.
// A run starts from uploaded, ingested or failed and always passes through
// processing; uploaded is never re-entered.
func (s DocumentStatus) CanTransition(next DocumentStatus) bool {
	switch s {
	case StatusUploaded, StatusIngested, StatusFailed:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusIngested || next == StatusFailed
	}
	return false
}

// IngestableStatuses are the statuses from which an ingestion run may start.
var IngestableStatuses = []DocumentStatus{StatusUploaded, StatusIngested, StatusFailed}

// Document represents an uploaded file and its ingestion state.
type Document struct {
	ID           string         `json:"id" db:"id"`
	OwnerID      string         `json:"owner_id" db:"owner_id"`
	Filename     string         `json:"filename" db:"filename"`
	Format       string         `json:"format" db:"format"`
	StorageKey   string         `json:"storage_key" db:"storage_key"`
	SizeBytes    int64          `json:"size_bytes" db:"size_bytes"`
	ContentHash  string         `json:"content_hash,omitempty" db:"content_hash"`
	Status       DocumentStatus `json:"status" db:"status"`
	ChunkCount   int            `json:"chunk_count" db:"chunk_count"`
	FailedChunks int            `json:"failed_chunks" db:"failed_chunks"`
	Error        string         `json:"error,omitempty" db:"error"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

// Chunk is a contiguous slice of a document's text with its embedding.
// OwnerID is denormalized from the parent document for tenant-scoped lookups.
type Chunk struct {
	ID         string    `json:"id" db:"id"`
	DocumentID string    `json:"document_id" db:"document_id"`
	OwnerID    string    `json:"owner_id" db:"owner_id"`
	Index      int       `json:"index" db:"chunk_index"`
	Content    string    `json:"content" db:"content"`
	TokenCount int       `json:"token_count" db:"token_count"`
	Embedding  []float32 `json:"-" db:"embedding"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
