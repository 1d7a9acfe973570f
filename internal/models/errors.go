package models

import (
	"context"
	"errors"
)

// Input and access errors.
var (
	ErrValidation    = errors.New("validation error")
	ErrAuthorization = errors.New("authorization error")
	ErrNotFound      = errors.New("not found")
)

// Document processing errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrExtractionFailure = errors.New("extraction failure")
	ErrIngestInProgress  = errors.New("document is already being processed")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Collaborator errors.
var (
	ErrEmbeddingProvider  = errors.New("embedding provider error")
	ErrVectorStore        = errors.New("vector store error")
	ErrStorage            = errors.New("storage error")
	ErrGenerationProvider = errors.New("generation provider error")
)

// Chat errors.
var (
	ErrStreamInterrupted = errors.New("stream interrupted")
	ErrConversationBusy  = errors.New("conversation is busy")
)

// Error kinds as they appear in API error bodies and terminal stream events.
const (
	KindValidation         = "validation"
	KindAuthorization      = "authorization"
	KindNotFound           = "not_found"
	KindUnsupportedFormat  = "unsupported_format"
	KindExtractionFailure  = "extraction_failure"
	KindIngestInProgress   = "ingest_in_progress"
	KindInvalidTransition  = "invalid_transition"
	KindEmbeddingProvider  = "embedding_provider"
	KindVectorStore        = "vector_store"
	KindStorage            = "storage"
	KindGenerationProvider = "generation_provider"
	KindStreamInterrupted  = "stream_interrupted"
	KindConversationBusy   = "conversation_busy"
	KindTimeout            = "timeout"
	KindCancelled          = "cancelled"
	KindInternal           = "internal"
)

// kindOrder is checked in order; the first match wins. StreamInterrupted sits
// first because it wraps the provider error that caused it.
var kindOrder = []struct {
	err  error
	kind string
}{
	{ErrStreamInterrupted, KindStreamInterrupted},
	{ErrValidation, KindValidation},
	{ErrAuthorization, KindAuthorization},
	{ErrUnsupportedFormat, KindUnsupportedFormat},
	{ErrExtractionFailure, KindExtractionFailure},
	{ErrIngestInProgress, KindIngestInProgress},
	{ErrInvalidTransition, KindInvalidTransition},
	{ErrEmbeddingProvider, KindEmbeddingProvider},
	{ErrVectorStore, KindVectorStore},
	{ErrStorage, KindStorage},
	{ErrGenerationProvider, KindGenerationProvider},
	{ErrConversationBusy, KindConversationBusy},
	{ErrNotFound, KindNotFound},
}

// ErrorKind classifies err into one of the Kind* constants.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kindOrder {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	}
	return KindInternal
}
