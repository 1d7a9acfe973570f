// Package server exposes documents, retrieval, and streaming chat over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/blob"
	"github.com/hyperjump/kotae/internal/chat"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Services are the components the API is served from. Inbox is optional.
type Services struct {
	Pipeline  *indexer.Pipeline
	Retriever *search.Retriever
	Chat      *chat.Orchestrator
	Storage   storage.Storage
	Index     vector.VectorIndex
	Blobs     blob.Store
	Inbox     *watcher.Inbox
}

// Server is the HTTP server for the kotae API.
type Server struct {
	svc    Services
	config *config.Config
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(svc Services, cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		svc:    svc,
		config: cfg,
		logger: utils.LoggerOrNop(logger),
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(accessLog(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ownerAuth(s.config.Server.OwnerHeader))

		// Streams are bounded by the generation timeout, not the request timeout.
		r.Post("/chat/stream", s.handleChatStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.config.Server.RequestTimeout))
			r.Use(middleware.Compress(5))

			r.Get("/status", s.handleStatus)

			r.Post("/documents", s.handleUpload)
			r.Post("/documents/presigned-url", s.handlePresign)
			r.Post("/documents/upload", s.handleRegister)
			r.Get("/documents", s.handleListDocuments)
			r.Get("/documents/{id}", s.handleGetDocument)
			r.Delete("/documents/{id}", s.handleDeleteDocument)
			r.Post("/documents/{id}/ingest", s.handleIngest)

			r.Post("/retrieve", s.handleRetrieve)

			r.Get("/conversations", s.handleListConversations)
			r.Get("/conversations/{id}/messages", s.handleListMessages)

			r.Get("/inbox/directories", s.handleInboxList)
			r.Post("/inbox/directories", s.handleInboxAdd)
			r.Delete("/inbox/directories", s.handleInboxRemove)
		})
	})
	return r
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Server.Host, strconv.Itoa(s.config.Server.Port))
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.config.Server.RequestTimeout,
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve %s: %w", addr, err)
	}
	return nil
}

// Stop gracefully shuts down the server. Chat streams still open when ctx
// expires are closed, which cancels their turns.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		_ = s.server.Close()
		return err
	}
	return nil
}
