// Package chat runs streaming chat turns: retrieval, prompt assembly, and
// generation, persisting every turn that reaches the model.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/pkg/utils"
)

const (
	titleRunes     = 50
	persistTimeout = 10 * time.Second
)

// Retriever finds the chunks relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, ownerID, query string, k int, documentIDs ...string) (*models.RetrievalResult, error)
}

// Orchestrator runs chat turns.
type Orchestrator struct {
	store     storage.Storage
	retriever Retriever
	generator llm.Generator
	locks     *KeyedLocker
	admission *semaphore.Weighted
	limiter   *rate.Limiter
	chat      config.ChatConfig
	gen       config.GenerationConfig
	logger    *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithLocker shares a conversation locker between orchestrators.
func WithLocker(l *KeyedLocker) Option {
	return func(o *Orchestrator) { o.locks = l }
}

// NewOrchestrator builds an orchestrator. Generation calls are bounded by
// cfg.Generation.MaxConcurrent and paced by cfg.Generation.RequestsPerMinute.
func NewOrchestrator(store storage.Storage, retriever Retriever, generator llm.Generator, cfg *config.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		retriever: retriever,
		generator: generator,
		locks:     NewKeyedLocker(),
		chat:      cfg.Chat,
		gen:       cfg.Generation,
	}
	concurrent := max(cfg.Generation.MaxConcurrent, 1)
	o.admission = semaphore.NewWeighted(int64(concurrent))
	o.limiter = rate.NewLimiter(rate.Inf, concurrent)
	if rpm := cfg.Generation.RequestsPerMinute; rpm > 0 {
		o.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), concurrent)
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = utils.LoggerOrNop(o.logger)
	return o
}

// Session is a turn that reached the model. Events yields deltas followed by
// exactly one terminal event and is then closed. The consumer must drain it
// until closed or cancel the context passed to Chat.
type Session struct {
	ConversationID string
	MessageID      string
	Events         <-chan Event
}

// turn carries the state of one Chat call.
type turn struct {
	owner  string
	req    *models.ChatRequest
	conv   *models.Conversation // nil until created for a new conversation
	convID string
	msgID  string
	fsm    *machine
	logger *zap.Logger
}

// Chat runs a turn. Errors before the first delta are returned here and
// nothing about the turn is persisted unless the model was reached. Once a
// Session is returned, the outcome arrives as its terminal event.
func (o *Orchestrator) Chat(ctx context.Context, ownerID string, req *models.ChatRequest) (*Session, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: owner is required", models.ErrAuthorization)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: empty request", models.ErrValidation)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	t := &turn{owner: ownerID, req: req, convID: req.ConversationID, msgID: fileid.NewID()}
	if t.convID != "" {
		conv, err := o.store.GetConversation(ctx, t.convID)
		if err != nil {
			return nil, err
		}
		if conv.OwnerID != ownerID {
			return nil, fmt.Errorf("%w: conversation %s", models.ErrAuthorization, t.convID)
		}
		t.conv = conv
	} else {
		t.convID = fileid.NewID()
	}
	t.logger = o.logger.With(zap.String("conversation_id", t.convID), zap.String("message_id", t.msgID))
	t.fsm = newMachine(t.logger)

	if err := o.checkDocuments(ctx, ownerID, req.DocumentIDs); err != nil {
		t.fsm.fail(err)
		return nil, err
	}

	unlock, err := o.lock(ctx, t.convID)
	if err != nil {
		t.fsm.fail(err)
		return nil, err
	}
	sess, err := o.prepare(ctx, t, unlock)
	if err != nil {
		unlock()
		t.fsm.fail(err)
		t.logger.Debug("chat turn failed", zap.Error(err))
		return nil, err
	}
	return sess, nil
}

// prepare runs the turn up to the first delta. On success the producer owns
// unlock.
func (o *Orchestrator) prepare(ctx context.Context, t *turn, unlock func()) (*Session, error) {
	var history []*models.Message
	if t.conv != nil && o.chat.HistoryMessages > 0 {
		var err error
		history, err = o.store.ListMessages(ctx, t.convID, o.chat.HistoryMessages)
		if err != nil {
			return nil, err
		}
	}

	var chunks []models.ScoredChunk
	rag := t.req.RAGEnabled()
	if rag {
		t.fsm.to(StateRetrieving)
		res, err := o.retriever.Retrieve(ctx, t.owner, t.req.Message, o.chat.TopK, t.req.DocumentIDs...)
		if err != nil {
			return nil, err
		}
		chunks = res.Chunks
	}

	t.fsm.to(StateContextAssembly)
	prompt, err := Assemble(PromptInput{
		Preamble: o.chat.SystemPreamble,
		RAG:      rag,
		Chunks:   chunks,
		History:  history,
		Query:    t.req.Message,
		Budget:   o.gen.ContextBudget,
	})
	if err != nil {
		return nil, err
	}
	if prompt.DroppedHistory > 0 || prompt.DroppedChunks > 0 {
		t.logger.Debug("prompt trimmed",
			zap.Int("dropped_history", prompt.DroppedHistory),
			zap.Int("dropped_chunks", prompt.DroppedChunks),
			zap.Int("tokens", prompt.Tokens))
	}

	if err := o.admission.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	release := func() { o.admission.Release(1) }
	if err := o.limiter.Wait(ctx); err != nil {
		release()
		return nil, err
	}

	t.fsm.to(StateGenerating)
	if err := o.persistUserMessage(ctx, t); err != nil {
		release()
		return nil, err
	}

	genCtx, cancel := withOptionalTimeout(ctx, o.gen.Timeout)
	stream, err := o.generator.Stream(genCtx, o.request(t.req, prompt))
	if err != nil {
		cancel()
		release()
		o.persistAssistant(ctx, t, "", models.MessageFailed, models.InterruptionError, nil)
		return nil, err
	}

	t.fsm.to(StateStreaming)
	events := make(chan Event)
	go func() {
		defer close(events)
		defer unlock()
		defer release()
		defer cancel()
		defer stream.Close()
		o.produce(ctx, t, stream, prompt, events)
	}()
	return &Session{ConversationID: t.convID, MessageID: t.msgID, Events: events}, nil
}

// produce forwards deltas and finishes the turn with one terminal event.
func (o *Orchestrator) produce(ctx context.Context, t *turn, stream llm.Stream, prompt *Prompt, events chan<- Event) {
	var text strings.Builder
	for stream.Next() {
		delta := stream.Delta()
		select {
		case events <- Event{Type: EventDelta, Delta: delta}:
			text.WriteString(delta)
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}

	content := text.String()
	status := models.MessagePartial
	if content == "" {
		status = models.MessageFailed
	}
	switch {
	case ctx.Err() != nil:
		t.fsm.to(StateCancelled)
		o.persistAssistant(ctx, t, content, status, models.InterruptionCancelled, nil)
		events <- Event{Type: EventCancelled, ConversationID: t.convID, MessageID: t.msgID}

	case stream.Err() != nil:
		err := fmt.Errorf("%w: %w", models.ErrStreamInterrupted, stream.Err())
		t.fsm.fail(err)
		o.persistAssistant(ctx, t, content, status, models.InterruptionError, nil)
		events <- Event{
			Type:           EventError,
			ConversationID: t.convID,
			MessageID:      t.msgID,
			Kind:           models.KindStreamInterrupted,
			Err:            err,
		}

	default:
		if err := o.persistAssistant(ctx, t, content, models.MessageComplete, models.InterruptionNone, prompt.ChunkIDs()); err != nil {
			t.fsm.fail(err)
			events <- Event{
				Type:           EventError,
				ConversationID: t.convID,
				MessageID:      t.msgID,
				Kind:           models.ErrorKind(err),
				Err:            err,
			}
			return
		}
		t.fsm.to(StateCompleted)
		events <- Event{
			Type:           EventCompleted,
			ConversationID: t.convID,
			MessageID:      t.msgID,
			Citations:      prompt.Citations(),
		}
	}
}

func (o *Orchestrator) request(req *models.ChatRequest, prompt *Prompt) *llm.Request {
	r := &llm.Request{
		Messages:    prompt.Messages,
		Temperature: o.gen.Temperature,
		MaxTokens:   o.gen.MaxTokens,
	}
	if req.Temperature != nil {
		r.Temperature = *req.Temperature
	}
	if req.MaxTokens > 0 {
		r.MaxTokens = req.MaxTokens
	}
	return r
}

// checkDocuments verifies that every requested document exists and belongs
// to the owner.
func (o *Orchestrator) checkDocuments(ctx context.Context, ownerID string, ids []string) error {
	for _, id := range ids {
		doc, err := o.store.GetDocument(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%w: unknown document %s", models.ErrValidation, id)
		}
		if err != nil {
			return err
		}
		if doc.OwnerID != ownerID {
			return fmt.Errorf("%w: document %s", models.ErrAuthorization, id)
		}
	}
	return nil
}

func (o *Orchestrator) lock(ctx context.Context, convID string) (func(), error) {
	lctx, cancel := withOptionalTimeout(ctx, o.chat.LockWait)
	defer cancel()
	unlock, err := o.locks.Lock(lctx, convID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: conversation %s", models.ErrConversationBusy, convID)
	}
	return unlock, nil
}

// persistUserMessage creates the conversation on its first turn and records
// the user's message.
func (o *Orchestrator) persistUserMessage(ctx context.Context, t *turn) error {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if t.conv == nil {
		conv := &models.Conversation{ID: t.convID, OwnerID: t.owner, Title: title(t.req.Message)}
		if err := o.store.CreateConversation(pctx, conv); err != nil {
			return err
		}
		t.conv = conv
	}
	return o.store.AppendMessage(pctx, &models.Message{
		ConversationID: t.convID,
		Role:           models.RoleUser,
		Content:        t.req.Message,
		Status:         models.MessageComplete,
	})
}

// persistAssistant records the assistant message. It runs detached from ctx
// so cancelled turns are still saved.
func (o *Orchestrator) persistAssistant(ctx context.Context, t *turn, content string, status models.MessageStatus, why models.Interruption, citations []string) error {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	err := o.store.AppendMessage(pctx, &models.Message{
		ID:             t.msgID,
		ConversationID: t.convID,
		Role:           models.RoleAssistant,
		Content:        content,
		Citations:      citations,
		Status:         status,
		Interruption:   why,
	})
	if err != nil {
		t.logger.Error("failed to persist assistant message", zap.String("status", string(status)), zap.Error(err))
	}
	return err
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func title(message string) string {
	r := []rune(strings.Join(strings.Fields(message), " "))
	if len(r) > titleRunes {
		r = r[:titleRunes]
	}
	return string(r)
}
