// Package llm streams answers from a generation model provider.
package llm

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

// Message is one prompt message.
type Message struct {
	Role    models.Role
	Content string
}

// Request is a fully assembled prompt plus sampling parameters.
type Request struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Generator opens streaming generations. Errors wrap
// models.ErrGenerationProvider.
type Generator interface {
	// Stream starts a generation. An error here means nothing was produced.
	Stream(ctx context.Context, req *Request) (Stream, error)
	Close() error
}

// Stream is a finite, non-restartable sequence of text deltas.
//
//	for s.Next() {
//		emit(s.Delta())
//	}
//	if err := s.Err(); err != nil { ... }
//
// Next returns false at end of stream or on error; Err tells which.
type Stream interface {
	Next() bool
	Delta() string
	Err() error
	Close() error
}

// New builds the generator selected in cfg.
func New(cfg *config.GenerationConfig) (Generator, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIGenerator(cfg), nil
	case "mock":
		return NewMockGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}

func providerErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", models.ErrGenerationProvider, op, err)
}
