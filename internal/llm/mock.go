package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

// MockGenerator is a scripted generator for tests and offline runs. Without
// a script it echoes the last user message back word by word.
type MockGenerator struct {
	// Deltas is the scripted output.
	Deltas []string
	// OpenErr fails Stream itself.
	OpenErr error
	// StreamErr, when set, ends the stream with an error after FailAfter deltas.
	StreamErr error
	FailAfter int
	// Delay is waited before each delta.
	Delay time.Duration

	mu       sync.Mutex
	requests []*Request
	closed   int
}

// NewMockGenerator returns an echoing mock generator.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Stream records the request and replays the script.
func (g *MockGenerator) Stream(ctx context.Context, req *Request) (Stream, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	if g.OpenErr != nil {
		return nil, providerErr("open stream", g.OpenErr)
	}
	deltas := g.Deltas
	if deltas == nil {
		deltas = echo(req)
	}
	s := &mockStream{ctx: ctx, gen: g, deltas: deltas, delay: g.Delay, failAt: -1}
	if g.StreamErr != nil {
		s.failAt = min(g.FailAfter, len(deltas))
		s.failErr = g.StreamErr
	}
	return s, nil
}

// Requests returns the requests seen so far.
func (g *MockGenerator) Requests() []*Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*Request(nil), g.requests...)
}

// ClosedStreams returns how many streams were closed by their consumer.
func (g *MockGenerator) ClosedStreams() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// Close is a no-op.
func (g *MockGenerator) Close() error {
	return nil
}

func echo(req *Request) []string {
	var last string
	for _, m := range req.Messages {
		if m.Role == models.RoleUser {
			last = m.Content
		}
	}
	words := strings.Fields("You asked: " + last)
	out := make([]string, len(words))
	for i, w := range words {
		if i > 0 {
			w = " " + w
		}
		out[i] = w
	}
	return out
}

type mockStream struct {
	ctx     context.Context
	gen     *MockGenerator
	deltas  []string
	pos     int
	delay   time.Duration
	failAt  int
	failErr error
	delta   string
	err     error
	closed  bool
}

func (s *mockStream) Next() bool {
	if s.err != nil || s.closed {
		return false
	}
	if s.pos == s.failAt {
		s.err = providerErr("stream", s.failErr)
		return false
	}
	if s.pos >= len(s.deltas) {
		return false
	}
	if s.delay > 0 {
		t := time.NewTimer(s.delay)
		select {
		case <-s.ctx.Done():
			t.Stop()
			s.err = providerErr("stream", s.ctx.Err())
			return false
		case <-t.C:
		}
	} else if err := s.ctx.Err(); err != nil {
		s.err = providerErr("stream", err)
		return false
	}
	s.delta = s.deltas[s.pos]
	s.pos++
	return true
}

func (s *mockStream) Delta() string {
	return s.delta
}

func (s *mockStream) Err() error {
	return s.err
}

func (s *mockStream) Close() error {
	if s.closed {
		return errors.New("stream already closed")
	}
	s.closed = true
	s.gen.mu.Lock()
	s.gen.closed++
	s.gen.mu.Unlock()
	return nil
}
