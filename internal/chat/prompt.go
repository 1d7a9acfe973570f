package chat

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
)

// messageOverhead is the per-message framing cost charged by chat models.
const messageOverhead = 4

const noContextNote = "No relevant excerpts were found in the user's documents for this question."

// PromptInput is everything a prompt is built from.
type PromptInput struct {
	Preamble string
	// RAG is false when retrieval was skipped; the prompt then carries no
	// excerpt section at all.
	RAG     bool
	Chunks  []models.ScoredChunk
	History []*models.Message // chronological
	Query   string
	Budget  int // prompt tokens; <= 0 means unlimited
}

// Prompt is an assembled prompt and what went into it.
type Prompt struct {
	Messages []llm.Message
	// Chunks are the excerpts kept, in citation order: Chunks[i] is [i+1].
	Chunks         []models.ScoredChunk
	Tokens         int
	DroppedHistory int
	DroppedChunks  int
}

// Citations returns citation entries for the kept excerpts.
func (p *Prompt) Citations() []models.Citation {
	return (&models.RetrievalResult{Chunks: p.Chunks}).Citations()
}

// ChunkIDs returns the IDs of the kept excerpts.
func (p *Prompt) ChunkIDs() []string {
	if len(p.Chunks) == 0 {
		return nil
	}
	ids := make([]string, len(p.Chunks))
	for i, sc := range p.Chunks {
		ids[i] = sc.Chunk.ID
	}
	return ids
}

// Assemble builds the prompt: a system message with the preamble and the
// numbered excerpts by descending score, then history, then the query. Over
// budget, the oldest history turns go first and then the lowest-scoring
// excerpts.
// If the preamble and query alone do not fit, Assemble fails with
// models.ErrValidation.
func Assemble(in PromptInput) (*Prompt, error) {
	chunks := slices.Clone(in.Chunks)
	slices.SortStableFunc(chunks, func(a, b models.ScoredChunk) int {
		return cmp.Compare(b.Score, a.Score)
	})
	history := make([]*models.Message, 0, len(in.History))
	for _, m := range in.History {
		if m.Content != "" && (m.Role == models.RoleUser || m.Role == models.RoleAssistant) {
			history = append(history, m)
		}
	}

	first, n := 0, len(chunks)
	for {
		system := systemContent(in.Preamble, in.RAG, chunks[:n])
		total := promptTokens(system, history[first:], in.Query)
		if in.Budget <= 0 || total <= in.Budget {
			msgs := make([]llm.Message, 0, len(history)-first+2)
			msgs = append(msgs, llm.Message{Role: models.RoleSystem, Content: system})
			for _, m := range history[first:] {
				msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
			}
			msgs = append(msgs, llm.Message{Role: models.RoleUser, Content: in.Query})
			return &Prompt{
				Messages:       msgs,
				Chunks:         chunks[:n],
				Tokens:         total,
				DroppedHistory: first,
				DroppedChunks:  len(chunks) - n,
			}, nil
		}
		switch {
		case first < len(history):
			first = nextTurn(history, first)
		case n > 0:
			n--
		default:
			return nil, fmt.Errorf("%w: message needs %d prompt tokens, budget is %d", models.ErrValidation, total, in.Budget)
		}
	}
}

func systemContent(preamble string, rag bool, chunks []models.ScoredChunk) string {
	if !rag {
		return preamble
	}
	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n\n")
	if len(chunks) == 0 {
		b.WriteString(noContextNote)
		return b.String()
	}
	b.WriteString("Document excerpts:\n")
	for i, sc := range chunks {
		fmt.Fprintf(&b, "\n[%d] %s (part %d)\n%s\n", i+1, sc.Filename, sc.Chunk.Index+1, sc.Chunk.Content)
	}
	return b.String()
}

// nextTurn returns the index of the first user message after i, so history
// is dropped a whole turn at a time: a question with the replies to it.
func nextTurn(history []*models.Message, i int) int {
	for i++; i < len(history) && history[i].Role != models.RoleUser; i++ {
	}
	return i
}

func promptTokens(system string, history []*models.Message, query string) int {
	total := embedding.CountTokens(system) + embedding.CountTokens(query) + 2*messageOverhead
	for _, m := range history {
		total += embedding.CountTokens(m.Content) + messageOverhead
	}
	return total
}
