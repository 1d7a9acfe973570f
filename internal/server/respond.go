package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

var kindStatus = map[string]int{
	models.KindValidation:         http.StatusBadRequest,
	models.KindAuthorization:      http.StatusForbidden,
	models.KindNotFound:           http.StatusNotFound,
	models.KindUnsupportedFormat:  http.StatusUnsupportedMediaType,
	models.KindExtractionFailure:  http.StatusUnprocessableEntity,
	models.KindIngestInProgress:   http.StatusConflict,
	models.KindInvalidTransition:  http.StatusConflict,
	models.KindConversationBusy:   http.StatusConflict,
	models.KindEmbeddingProvider:  http.StatusBadGateway,
	models.KindGenerationProvider: http.StatusBadGateway,
	models.KindStreamInterrupted:  http.StatusBadGateway,
	models.KindVectorStore:        http.StatusServiceUnavailable,
	models.KindStorage:            http.StatusInternalServerError,
	models.KindTimeout:            http.StatusGatewayTimeout,
	models.KindCancelled:          http.StatusRequestTimeout,
}

// statusFor maps an error to its HTTP status and kind.
func statusFor(err error) (int, string) {
	kind := models.ErrorKind(err)
	if status, ok := kindStatus[kind]; ok {
		return status, kind
	}
	return http.StatusInternalServerError, kind
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("kind", kind),
			zap.Error(err))
	}
	respondJSON(w, status, errorBody{Error: err.Error(), Kind: kind})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &requestError{msg: "invalid request body: " + err.Error()}
	}
	return nil
}

// requestError is a malformed request.
type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

func (e *requestError) Unwrap() error { return models.ErrValidation }
