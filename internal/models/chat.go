package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// MessageStatus tells whether a message was fully produced.
type MessageStatus string

const (
	MessageComplete MessageStatus = "complete"
	MessagePartial  MessageStatus = "partial"
	MessageFailed   MessageStatus = "failed"
)

// Interruption tags why an assistant message did not complete.
type Interruption string

const (
	InterruptionNone      Interruption = ""
	InterruptionError     Interruption = "error"
	InterruptionCancelled Interruption = "cancelled"
)

// Conversation groups the messages of one chat thread.
type Conversation struct {
	ID        string    `json:"id" db:"id"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	Title     string    `json:"title" db:"title"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Message is one turn of a conversation. Seq is assigned by the store and is
// gapless within a conversation.
type Message struct {
	ID             string        `json:"id" db:"id"`
	ConversationID string        `json:"conversation_id" db:"conversation_id"`
	Seq            int           `json:"seq" db:"seq"`
	Role           Role          `json:"role" db:"role"`
	Content        string        `json:"content" db:"content"`
	Citations      []string      `json:"citations,omitempty" db:"citations"`
	Status         MessageStatus `json:"status" db:"status"`
	Interruption   Interruption  `json:"interruption,omitempty" db:"interruption"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
}

// Citation links an answer to a chunk that informed it.
type Citation struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Index      int     `json:"index"`
	Score      float64 `json:"score"`
}

// Chat request limits.
const (
	MaxMessageRunes = 8000
	MaxTemperature  = 2.0
	MaxTokensLimit  = 8192
	MaxDocumentIDs  = 50
)

// ChatRequest is the body of a streaming chat call.
type ChatRequest struct {
	Message        string   `json:"message"`
	ConversationID string   `json:"conversation_id,omitempty"`
	UseRAG         *bool    `json:"use_rag,omitempty"`
	DocumentIDs    []string `json:"document_ids,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
	MaxTokens      int      `json:"max_tokens,omitempty"`
}

// RAGEnabled reports whether retrieval was requested. Defaults to true.
func (r *ChatRequest) RAGEnabled() bool {
	return r.UseRAG == nil || *r.UseRAG
}

// Validate checks field constraints and trims the message.
func (r *ChatRequest) Validate() error {
	r.Message = strings.TrimSpace(r.Message)
	if r.Message == "" {
		return fmt.Errorf("%w: message cannot be empty", ErrValidation)
	}
	if n := utf8.RuneCountInString(r.Message); n > MaxMessageRunes {
		return fmt.Errorf("%w: message has %d characters, limit is %d", ErrValidation, n, MaxMessageRunes)
	}
	if r.ConversationID != "" {
		if _, err := uuid.Parse(r.ConversationID); err != nil {
			return fmt.Errorf("%w: conversation_id is not a valid id", ErrValidation)
		}
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > MaxTemperature) {
		return fmt.Errorf("%w: temperature must be between 0 and %.1f", ErrValidation, MaxTemperature)
	}
	if r.MaxTokens < 0 || r.MaxTokens > MaxTokensLimit {
		return fmt.Errorf("%w: max_tokens must be between 1 and %d, or 0 for the default", ErrValidation, MaxTokensLimit)
	}
	if len(r.DocumentIDs) > MaxDocumentIDs {
		return fmt.Errorf("%w: at most %d document_ids", ErrValidation, MaxDocumentIDs)
	}
	for _, id := range r.DocumentIDs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: document_ids contains an empty id", ErrValidation)
		}
	}
	return nil
}
