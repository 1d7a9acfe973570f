package llm

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

// OpenAIGenerator streams chat completions from an OpenAI-compatible API.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator returns a generator for cfg.Model.
func NewOpenAIGenerator(cfg *config.GenerationConfig) *OpenAIGenerator {
	opts := []option.RequestOption{option.WithMaxRetries(1)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIGenerator{client: &client, model: cfg.Model}
}

// Stream opens a streaming completion. The first chunk is read before
// returning so connection and request errors surface here rather than
// mid-stream.
func (g *OpenAIGenerator) Stream(ctx context.Context, req *Request) (Stream, error) {
	params := openai.ChatCompletionNewParams{
		Messages: toParams(req.Messages),
		Model:    openai.ChatModel(g.model),
	}
	params.Temperature = openai.Float(req.Temperature)
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	raw := g.client.Chat.Completions.NewStreaming(ctx, params)
	s := &openAIStream{raw: raw}
	if !s.advance() {
		if err := raw.Err(); err != nil {
			_ = raw.Close()
			return nil, providerErr("open stream", err)
		}
	}
	s.primed = true
	return s, nil
}

// Close is a no-op; the HTTP client has no resources to release.
func (g *OpenAIGenerator) Close() error {
	return nil
}

func toParams(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case models.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case models.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// openAIStream skips chunks that carry no content (role headers, finish
// markers) so every successful Next has a non-empty Delta.
type openAIStream struct {
	raw    *ssestream.Stream[openai.ChatCompletionChunk]
	delta  string
	primed bool // a delta read while opening is waiting to be returned
	ended  bool
}

func (s *openAIStream) advance() bool {
	for s.raw.Next() {
		chunk := s.raw.Current()
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		s.delta = chunk.Choices[0].Delta.Content
		return true
	}
	s.ended = true
	return false
}

func (s *openAIStream) Next() bool {
	if s.primed {
		s.primed = false
		return !s.ended
	}
	if s.ended {
		return false
	}
	return s.advance()
}

func (s *openAIStream) Delta() string {
	return s.delta
}

func (s *openAIStream) Err() error {
	if err := s.raw.Err(); err != nil {
		return providerErr("stream", err)
	}
	return nil
}

func (s *openAIStream) Close() error {
	return s.raw.Close()
}
