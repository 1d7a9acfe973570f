package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

func testConfig(dims int) *config.EmbeddingConfig {
	return &config.EmbeddingConfig{
		Provider:          "mock",
		Dimensions:        dims,
		BatchSize:         2,
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		RequestsPerSecond: 0,
		Timeout:           time.Second,
		CacheSize:         16,
	}
}

// scriptedEmbedder fails the first `failures` calls with err, then delegates.
type scriptedEmbedder struct {
	*MockEmbedder
	mu       sync.Mutex
	failures int
	err      error
	calls    int
	batches  [][]string
	wrongDim bool
	block    bool
}

func (s *scriptedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	s.calls++
	s.batches = append(s.batches, append([]string(nil), texts...))
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if fail {
		return nil, s.err
	}
	if s.wrongDim {
		return [][]float32{{1}}, nil
	}
	return s.MockEmbedder.EmbedBatch(ctx, texts)
}

func TestGateway_preservesOrderAcrossBatches(t *testing.T) {
	mock := NewMockEmbedder(8)
	prov := &scriptedEmbedder{MockEmbedder: mock}
	g, err := NewGateway(prov, testConfig(8))
	require.NoError(t, err)

	texts := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
	vecs, err := g.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	for i, text := range texts {
		want, _ := mock.Embed(context.Background(), text)
		assert.Equal(t, want, vecs[i], "vector %d out of order", i)
	}
	assert.Equal(t, 3, prov.calls, "5 texts in batches of 2")
	assert.Equal(t, []string{"epsilon"}, prov.batches[2])
}

func TestGateway_retriesTransientFailures(t *testing.T) {
	prov := &scriptedEmbedder{MockEmbedder: NewMockEmbedder(4), failures: 2, err: fmt.Errorf("%w: 429", ErrTransient)}
	g, err := NewGateway(prov, testConfig(4))
	require.NoError(t, err)

	vecs, err := g.EmbedBatch(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
	assert.Equal(t, 3, prov.calls)
}

func TestGateway_givesUpAfterMaxAttempts(t *testing.T) {
	prov := &scriptedEmbedder{MockEmbedder: NewMockEmbedder(4), failures: 10, err: fmt.Errorf("%w: 503", ErrTransient)}
	g, err := NewGateway(prov, testConfig(4))
	require.NoError(t, err)

	_, err = g.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrEmbeddingProvider)
	assert.Equal(t, 3, prov.calls)
}

func TestGateway_permanentErrorNotRetried(t *testing.T) {
	prov := &scriptedEmbedder{MockEmbedder: NewMockEmbedder(4), failures: 1, err: errors.New("invalid api key")}
	g, err := NewGateway(prov, testConfig(4))
	require.NoError(t, err)

	_, err = g.EmbedBatch(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, models.ErrEmbeddingProvider)
	assert.Equal(t, 1, prov.calls)
}

func TestGateway_timeoutSurfacesAsProviderError(t *testing.T) {
	cfg := testConfig(4)
	cfg.Timeout = 10 * time.Millisecond
	cfg.MaxAttempts = 2
	prov := &scriptedEmbedder{MockEmbedder: NewMockEmbedder(4), block: true}
	g, err := NewGateway(prov, cfg)
	require.NoError(t, err)

	start := time.Now()
	_, err = g.EmbedBatch(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, models.ErrEmbeddingProvider)
	assert.Equal(t, 2, prov.calls)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestGateway_rejectsWrongDimensions(t *testing.T) {
	_, err := NewGateway(NewMockEmbedder(4), testConfig(8))
	assert.Error(t, err)

	prov := &scriptedEmbedder{MockEmbedder: NewMockEmbedder(4), wrongDim: true}
	g, err := NewGateway(prov, testConfig(4))
	require.NoError(t, err)
	_, err = g.EmbedBatch(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, models.ErrEmbeddingProvider)
	assert.Equal(t, 1, prov.calls)
}

func TestGateway_cancelledContext(t *testing.T) {
	g, err := NewGateway(NewMockEmbedder(4), testConfig(4))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.EmbedBatch(ctx, []string{"a"})
	assert.ErrorIs(t, err, models.ErrEmbeddingProvider)
}

func TestGateway_embedQueryUsesCache(t *testing.T) {
	mock := NewMockEmbedder(4)
	g, err := NewGateway(mock, testConfig(4))
	require.NoError(t, err)

	v1, err := g.EmbedQuery(context.Background(), "what is kotae?")
	require.NoError(t, err)
	v2, err := g.EmbedQuery(context.Background(), "what is kotae?")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, mock.Calls())
	assert.Equal(t, 4, g.Dimensions())
}

func TestGateway_emptyBatch(t *testing.T) {
	mock := NewMockEmbedder(4)
	g, err := NewGateway(mock, testConfig(4))
	require.NoError(t, err)
	vecs, err := g.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
	assert.Equal(t, 0, mock.Calls())
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(fmt.Errorf("wrapped: %w", ErrTransient)))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(errors.New("bad request")))
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(&config.EmbeddingConfig{Provider: "mock", Dimensions: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, p.Dimensions())

	p, err = NewProvider(&config.EmbeddingConfig{Provider: "openai", Model: "text-embedding-3-small", Dimensions: 256})
	require.NoError(t, err)
	assert.Equal(t, 256, p.Dimensions())

	_, err = NewProvider(&config.EmbeddingConfig{Provider: "onnx"})
	assert.Error(t, err)
}
