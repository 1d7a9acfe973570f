package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

// Gateway wraps a raw provider with batching, rate limiting, per-call
// deadlines, bounded retries and dimension checks. Every error it returns
// wraps models.ErrEmbeddingProvider.
type Gateway struct {
	provider       Embedder
	dimensions     int
	batchSize      int
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	timeout        time.Duration
	limiter        *rate.Limiter
	cache          *EmbeddingCache
	logger         *zap.Logger
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithLogger sets the logger for the gateway.
func WithLogger(l *zap.Logger) GatewayOption {
	return func(g *Gateway) {
		g.logger = l
	}
}

// WithCache replaces the query-embedding cache.
func WithCache(c *EmbeddingCache) GatewayOption {
	return func(g *Gateway) {
		g.cache = c
	}
}

// NewGateway returns a gateway over provider configured by cfg.
func NewGateway(provider Embedder, cfg *config.EmbeddingConfig, opts ...GatewayOption) (*Gateway, error) {
	if provider.Dimensions() != cfg.Dimensions {
		return nil, fmt.Errorf("embedding provider has %d dimensions, config expects %d", provider.Dimensions(), cfg.Dimensions)
	}
	g := &Gateway{
		provider:       provider,
		dimensions:     cfg.Dimensions,
		batchSize:      max(cfg.BatchSize, 1),
		maxAttempts:    max(cfg.MaxAttempts, 1),
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		timeout:        cfg.Timeout,
		limiter:        newLimiter(cfg.RequestsPerSecond, cfg.Burst),
		cache:          NewEmbeddingCache(cfg.CacheSize),
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Embed is EmbedQuery; it lets the gateway stand in for any Embedder.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	return g.EmbedQuery(ctx, text)
}

// EmbedQuery embeds a single query string, serving repeats from the cache.
func (g *Gateway) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if v, ok := g.cache.Get(text); ok {
		return v, nil
	}
	vecs, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	g.cache.Set(text, vecs[0])
	return vecs[0], nil
}

// EmbedBatch embeds texts in provider-sized batches and returns vectors in
// input order. It either returns one vector per input or an error.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += g.batchSize {
		end := min(start+g.batchSize, len(texts))
		vecs, err := g.embedWithRetry(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("%w: batch %d-%d: %w", models.ErrEmbeddingProvider, start, end, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (g *Gateway) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.initialBackoff
	b.MaxInterval = g.maxBackoff
	b.MaxElapsedTime = 0 // bounded by attempts instead

	var result [][]float32
	attempt := 0
	op := func() error {
		attempt++
		if err := g.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		vecs, err := g.call(ctx, texts)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if !IsTransient(err) {
				return backoff.Permanent(err)
			}
			g.logger.Warn("embedding request failed, will retry",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", g.maxAttempts),
				zap.Int("batch_size", len(texts)),
				zap.Error(err))
			return err
		}
		if err := g.check(vecs, len(texts)); err != nil {
			return backoff.Permanent(err)
		}
		result = vecs
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(g.maxAttempts-1)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, fmt.Errorf("after %d attempt(s): %w", attempt, err)
	}
	return result, nil
}

// call runs one provider request under the per-call deadline.
func (g *Gateway) call(ctx context.Context, texts []string) ([][]float32, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	return g.provider.EmbedBatch(ctx, texts)
}

func (g *Gateway) check(vecs [][]float32, want int) error {
	if len(vecs) != want {
		return fmt.Errorf("provider returned %d vectors for %d inputs", len(vecs), want)
	}
	for i, v := range vecs {
		if len(v) != g.dimensions {
			return fmt.Errorf("vector %d has %d dimensions, want %d", i, len(v), g.dimensions)
		}
	}
	return nil
}

// Dimensions returns the fixed vector length D.
func (g *Gateway) Dimensions() int {
	return g.dimensions
}

// Close closes the underlying provider.
func (g *Gateway) Close() error {
	return g.provider.Close()
}

// newLimiter returns an unlimited limiter when rps is not positive.
func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), max(burst, 1))
}
