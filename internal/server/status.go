package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/blob"
	"github.com/hyperjump/kotae/internal/models"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusConfig struct {
	VectorIndexType     string `json:"vector_index_type"`
	BlobStoreType       string `json:"blob_store_type"`
	EmbeddingProvider   string `json:"embedding_provider"`
	EmbeddingDimensions int    `json:"embedding_dimensions"`
	GenerationProvider  string `json:"generation_provider"`
	GenerationModel     string `json:"generation_model,omitempty"`
	ChunkSize           int    `json:"chunk_size"`
	ChunkOverlap        int    `json:"chunk_overlap"`
	TopK                int    `json:"top_k"`
}

type statusResponse struct {
	Documents       int64        `json:"documents"`
	Chunks          int64        `json:"chunks"`
	VectorIndexSize int          `json:"vector_index_size"`
	BlobUsageBytes  *int64       `json:"blob_usage_bytes,omitempty"`
	Config          statusConfig `json:"config"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docs, err := s.svc.Storage.CountDocuments(ctx)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	chunks, err := s.svc.Storage.CountChunks(ctx)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	vectors, err := s.svc.Index.Count(ctx)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	cfg := s.config
	resp := statusResponse{
		Documents:       docs,
		Chunks:          chunks,
		VectorIndexSize: vectors,
		Config: statusConfig{
			VectorIndexType:     cfg.Vector.Type,
			BlobStoreType:       cfg.Blob.Type,
			EmbeddingProvider:   cfg.Embedding.Provider,
			EmbeddingDimensions: cfg.Embedding.Dimensions,
			GenerationProvider:  cfg.Generation.Provider,
			GenerationModel:     cfg.Generation.Model,
			ChunkSize:           cfg.Chunking.ChunkSize,
			ChunkOverlap:        cfg.Chunking.OverlapOrDefault(),
			TopK:                cfg.Chat.TopK,
		},
	}
	if disk, ok := s.svc.Blobs.(*blob.DiskStore); ok {
		if n, err := disk.Usage(); err == nil {
			resp.BlobUsageBytes = &n
		} else {
			s.logger.Warn("blob usage unavailable", zap.Error(err))
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// The inbox belongs to a single configured owner; only that owner manages it.
func (s *Server) inboxAllowed(w http.ResponseWriter, r *http.Request) bool {
	if s.svc.Inbox == nil {
		respondJSON(w, http.StatusNotImplemented, errorBody{Error: "inbox not enabled", Kind: models.KindInternal})
		return false
	}
	if ownerFrom(r) != s.svc.Inbox.OwnerID() {
		s.respondError(w, r, fmt.Errorf("%w: inbox belongs to another owner", models.ErrAuthorization))
		return false
	}
	return true
}

func (s *Server) handleInboxList(w http.ResponseWriter, r *http.Request) {
	if !s.inboxAllowed(w, r) {
		return
	}
	respondJSON(w, http.StatusOK, map[string][]string{"directories": s.svc.Inbox.Directories()})
}

type inboxRequest struct {
	Path string `json:"path"`
}

func (s *Server) inboxPath(r *http.Request) (string, error) {
	path := r.URL.Query().Get("path")
	if path == "" && r.ContentLength != 0 {
		var body inboxRequest
		if err := decodeJSON(r, &body); err != nil {
			return "", err
		}
		path = body.Path
	}
	if path == "" {
		return "", fmt.Errorf("%w: path is required", models.ErrValidation)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: invalid path", models.ErrValidation)
	}
	return abs, nil
}

func (s *Server) handleInboxAdd(w http.ResponseWriter, r *http.Request) {
	if !s.inboxAllowed(w, r) {
		return
	}
	path, err := s.inboxPath(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.respondError(w, r, fmt.Errorf("%w: directory %s", models.ErrNotFound, path))
		return
	case err != nil:
		s.respondError(w, r, err)
		return
	case !info.IsDir():
		s.respondError(w, r, fmt.Errorf("%w: %s is not a directory", models.ErrValidation, path))
		return
	}
	if err := s.svc.Inbox.AddDirectory(path); err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"path": path, "status": "added"})
}

func (s *Server) handleInboxRemove(w http.ResponseWriter, r *http.Request) {
	if !s.inboxAllowed(w, r) {
		return
	}
	path, err := s.inboxPath(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.svc.Inbox.RemoveDirectory(path); err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"path": path, "status": "removed"})
}
