package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/chat"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/search"
)

// handleChatStream answers with a server-sent event stream: delta events
// followed by one of completed, error or cancelled. Failures before the first
// delta are plain JSON errors.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, r, fmt.Errorf("streaming unsupported"))
		return
	}
	var req models.ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	sess, err := s.svc.Chat.Chat(r.Context(), ownerFrom(r), &req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set("X-Conversation-ID", sess.ConversationID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	interval := s.config.Server.SSEHeartbeat
	if interval <= 0 {
		interval = 15 * time.Second
	}
	heartbeat := time.NewTicker(interval)
	defer heartbeat.Stop()
	// The session must be drained to the end even after the client left.
	for {
		select {
		case ev, open := <-sess.Events:
			if !open {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				s.logger.Debug("event write failed", zap.String("conversation_id", sess.ConversationID), zap.Error(err))
				continue
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err == nil {
				flusher.Flush()
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, ev chat.Event) error {
	data, err := json.Marshal(ev.Payload())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}

type conversationList struct {
	Conversations []*models.Conversation `json:"conversations"`
	Offset        int                    `json:"offset"`
	Limit         int                    `json:"limit"`
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := pagination(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	convs, err := s.svc.Storage.ListConversations(r.Context(), ownerFrom(r), offset, limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if convs == nil {
		convs = []*models.Conversation{}
	}
	respondJSON(w, http.StatusOK, conversationList{Conversations: convs, Offset: offset, Limit: limit})
}

type messageList struct {
	ConversationID string            `json:"conversation_id"`
	Messages       []*models.Message `json:"messages"`
}

// handleListMessages returns the conversation transcript in order. limit, when
// set, keeps only the most recent messages.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conv, err := s.svc.Storage.GetConversation(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if conv.OwnerID != ownerFrom(r) {
		s.respondError(w, r, fmt.Errorf("%w: conversation %s", models.ErrAuthorization, id))
		return
	}
	limit := 0
	if r.URL.Query().Has("limit") {
		if _, limit, err = pagination(r); err != nil {
			s.respondError(w, r, err)
			return
		}
	}
	msgs, err := s.svc.Storage.ListMessages(r.Context(), id, limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	respondJSON(w, http.StatusOK, messageList{ConversationID: id, Messages: msgs})
}

const snippetRunes = 240

type retrievedChunk struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Index      int     `json:"index"`
	Score      float64 `json:"score"`
	Snippet    string  `json:"snippet"`
}

type retrieveResponse struct {
	Query     string           `json:"query"`
	Chunks    []retrievedChunk `json:"chunks"`
	QueryTime int64            `json:"query_time_ms"`
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var q models.RetrieveQuery
	if err := decodeJSON(r, &q); err != nil {
		s.respondError(w, r, err)
		return
	}
	res, err := s.svc.Retriever.Search(r.Context(), ownerFrom(r), &q, s.config.Chat.TopK)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	out := retrieveResponse{Query: q.Query, Chunks: make([]retrievedChunk, 0, len(res.Chunks)), QueryTime: res.QueryTime}
	for _, sc := range res.Chunks {
		out.Chunks = append(out.Chunks, retrievedChunk{
			ChunkID:    sc.Chunk.ID,
			DocumentID: sc.Chunk.DocumentID,
			Filename:   sc.Filename,
			Index:      sc.Chunk.Index,
			Score:      sc.Score,
			Snippet:    search.Snippet(sc.Chunk.Content, q.Query, snippetRunes),
		})
	}
	respondJSON(w, http.StatusOK, out)
}
