// Package embedding turns text into fixed-dimension vectors through an
// external provider, with batching, rate limiting, retries and caching.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/hyperjump/kotae/internal/config"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// ErrTransient marks provider failures worth retrying (rate limits, timeouts,
// server errors). Providers wrap it; the gateway retries on it.
var ErrTransient = errors.New("transient provider failure")

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// NewProvider builds the raw provider selected in cfg.
func NewProvider(cfg *config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIEmbedder(cfg), nil
	case "mock":
		return NewMockEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
