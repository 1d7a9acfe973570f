package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

func drain(s Stream) string {
	var b strings.Builder
	for s.Next() {
		b.WriteString(s.Delta())
	}
	return b.String()
}

func TestMockGenerator_Echo(t *testing.T) {
	g := NewMockGenerator()
	s, err := g.Stream(context.Background(), &Request{Messages: []Message{
		{Role: models.RoleSystem, Content: "be nice"},
		{Role: models.RoleUser, Content: "what is kotae"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "You asked: what is kotae", drain(s))
	assert.NoError(t, s.Err())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, g.ClosedStreams())
	assert.Len(t, g.Requests(), 1)
}

func TestMockGenerator_FailsMidStream(t *testing.T) {
	g := &MockGenerator{
		Deltas:    []string{"Hello", ", the docum", "ent says"},
		StreamErr: errors.New("connection reset"),
		FailAfter: 2,
	}
	s, err := g.Stream(context.Background(), &Request{})
	require.NoError(t, err)
	assert.Equal(t, "Hello, the docum", drain(s))
	assert.ErrorIs(t, s.Err(), models.ErrGenerationProvider)
}

func TestMockGenerator_OpenError(t *testing.T) {
	g := &MockGenerator{OpenErr: errors.New("401")}
	_, err := g.Stream(context.Background(), &Request{})
	assert.ErrorIs(t, err, models.ErrGenerationProvider)
}

func TestMockGenerator_StopsOnCancel(t *testing.T) {
	g := &MockGenerator{Deltas: []string{"a", "b", "c"}, Delay: 20 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	s, err := g.Stream(ctx, &Request{})
	require.NoError(t, err)
	require.True(t, s.Next())
	cancel()
	assert.False(t, s.Next())
	assert.ErrorIs(t, s.Err(), context.Canceled)
}

func TestNew(t *testing.T) {
	g, err := New(&config.GenerationConfig{Provider: "mock"})
	require.NoError(t, err)
	assert.IsType(t, &MockGenerator{}, g)

	g, err = New(&config.GenerationConfig{Provider: "openai", Model: "gpt-4o-mini", APIKey: "sk-test"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIGenerator{}, g)

	_, err = New(&config.GenerationConfig{Provider: "nope"})
	assert.Error(t, err)
}

func TestToParams(t *testing.T) {
	params := toParams([]Message{
		{Role: models.RoleSystem, Content: "s"},
		{Role: models.RoleUser, Content: "u"},
		{Role: models.RoleAssistant, Content: "a"},
	})
	require.Len(t, params, 3)
	assert.NotNil(t, params[0].OfSystem)
	assert.NotNil(t, params[1].OfUser)
	assert.NotNil(t, params[2].OfAssistant)
}
