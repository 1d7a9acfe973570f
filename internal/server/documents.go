package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

// multipartOverhead is allowed on top of the file size for form framing.
const multipartOverhead = 1 << 20

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)
	limit := s.config.Server.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, fmt.Errorf("%w: upload exceeds %d bytes", models.ErrValidation, limit))
			return
		}
		s.respondError(w, r, &requestError{msg: "invalid multipart form: " + err.Error()})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, &requestError{msg: "form field \"file\" is required"})
		return
	}
	defer file.Close()
	if header.Size > limit {
		s.respondError(w, r, fmt.Errorf("%w: file is %d bytes, limit is %d", models.ErrValidation, header.Size, limit))
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("read upload: %w", err))
		return
	}

	doc, err := s.svc.Pipeline.Upload(r.Context(), owner, header.Filename, data)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if autoIngest, _ := strconv.ParseBool(r.FormValue("auto_ingest")); autoIngest {
		s.svc.Pipeline.IngestAsync(r.Context(), owner, doc.ID)
	}
	respondJSON(w, http.StatusCreated, doc)
}

type presignRequest struct {
	Filename string `json:"filename"`
}

type presignResponse struct {
	URL        string `json:"presigned_url"`
	ObjectName string `json:"object_name"`
	ExpiresIn  int    `json:"expires_in"`
}

// handlePresign returns a URL the client uploads the file to directly. The
// object is registered afterwards through handleRegister.
func (s *Server) handlePresign(w http.ResponseWriter, r *http.Request) {
	var req presignRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	up, err := s.svc.Pipeline.PresignUpload(r.Context(), ownerFrom(r), req.Filename)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, presignResponse{
		URL:        up.URL,
		ObjectName: up.ObjectKey,
		ExpiresIn:  int(up.ExpiresIn.Seconds()),
	})
}

type registerRequest struct {
	ObjectName string `json:"object_name"`
	Filename   string `json:"filename"`
	AutoIngest bool   `json:"auto_ingest"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	owner := ownerFrom(r)
	doc, err := s.svc.Pipeline.Register(r.Context(), owner, req.ObjectName, req.Filename)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.AutoIngest {
		s.svc.Pipeline.IngestAsync(r.Context(), owner, doc.ID)
	}
	respondJSON(w, http.StatusCreated, doc)
}

type documentList struct {
	Documents []*models.Document `json:"documents"`
	Offset    int                `json:"offset"`
	Limit     int                `json:"limit"`
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := pagination(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	docs, err := s.svc.Pipeline.List(r.Context(), ownerFrom(r), offset, limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	respondJSON(w, http.StatusOK, documentList{Documents: docs, Offset: offset, Limit: limit})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.svc.Pipeline.Get(r.Context(), ownerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("document_id", id))
	if err := s.svc.Pipeline.Delete(r.Context(), ownerFrom(r), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

// handleIngest runs ingestion inline, or in the background with async=true.
// An inline run is not aborted when the client disconnects.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	owner, id := ownerFrom(r), chi.URLParam(r, "id")
	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		doc, err := s.svc.Pipeline.Get(r.Context(), owner, id)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		if doc.Status == models.StatusProcessing {
			s.respondError(w, r, fmt.Errorf("%w: %s", models.ErrIngestInProgress, id))
			return
		}
		s.svc.Pipeline.IngestAsync(r.Context(), owner, id)
		respondJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "accepted"})
		return
	}
	doc, err := s.svc.Pipeline.Ingest(context.WithoutCancel(r.Context()), owner, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func pagination(r *http.Request) (offset, limit int, err error) {
	q := r.URL.Query()
	limit = defaultPageSize
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit <= 0 {
			return 0, 0, fmt.Errorf("%w: limit must be a positive integer", models.ErrValidation)
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("%w: offset must be a non-negative integer", models.ErrValidation)
		}
	}
	return offset, min(limit, maxPageSize), nil
}
