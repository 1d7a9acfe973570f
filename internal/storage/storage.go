// Package storage defines the persistence interface for users, documents,
// chunks, conversations and messages.
package storage

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// Storage defines relational persistence. Lookup misses return an error
// wrapping models.ErrNotFound; backend failures wrap models.ErrStorage.
type Storage interface {
	// User operations
	EnsureUser(ctx context.Context, ownerID string) error

	// Document operations
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, ownerID string, offset, limit int) ([]*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	// StartIngestion moves a document to processing if its current status
	// allows a new run. It fails with ErrIngestInProgress when a run is
	// already active.
	StartIngestion(ctx context.Context, id string) (*models.Document, error)
	// FinishIngestion records the outcome of the active run.
	FinishIngestion(ctx context.Context, id string, outcome IngestionOutcome) (*models.Document, error)
	// FailInterrupted marks documents left in processing by a previous
	// process as failed and returns how many were touched.
	FailInterrupted(ctx context.Context, reason string) (int64, error)

	// Chunk operations
	UpsertChunks(ctx context.Context, chunks []*models.Chunk) error
	DeleteChunks(ctx context.Context, ids []string) error
	DeleteChunksByDocumentID(ctx context.Context, docID string) error
	GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.Chunk, error)
	// GetChunksByIDs returns the owner's chunks keyed by ID. IDs that do not
	// exist or belong to someone else are absent from the map.
	GetChunksByIDs(ctx context.Context, ownerID string, ids []string) (map[string]*models.Chunk, error)
	// ForEachChunk streams every chunk that has an embedding.
	ForEachChunk(ctx context.Context, fn func(*models.Chunk) error) error

	// Conversation operations
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context, ownerID string, offset, limit int) ([]*models.Conversation, error)
	// AppendMessage assigns the next sequence number and a creation time
	// strictly after the previous message of the conversation.
	AppendMessage(ctx context.Context, msg *models.Message) error
	// ListMessages returns the last limit messages in chronological order;
	// limit <= 0 returns all of them.
	ListMessages(ctx context.Context, conversationID string, limit int) ([]*models.Message, error)

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}

// IngestionOutcome is the final state of an ingestion run.
type IngestionOutcome struct {
	Status       models.DocumentStatus
	ChunkCount   int
	FailedChunks int
	Error        string
}
