// Package cli provides output formatting and an HTTP client for the kotae CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// RetrievedChunk is one hit of POST /api/v1/retrieve.
type RetrievedChunk struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Index      int     `json:"index"`
	Score      float64 `json:"score"`
	Snippet    string  `json:"snippet"`
}

// RetrieveResponse is the body of POST /api/v1/retrieve.
type RetrieveResponse struct {
	Query     string           `json:"query"`
	Chunks    []RetrievedChunk `json:"chunks"`
	QueryTime int64            `json:"query_time_ms"`
}

// StatusConfig is the configuration block of GET /api/v1/status.
type StatusConfig struct {
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

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Documents       int64        `json:"documents"`
	Chunks          int64        `json:"chunks"`
	VectorIndexSize int          `json:"vector_index_size"`
	BlobUsageBytes  *int64       `json:"blob_usage_bytes,omitempty"`
	Config          StatusConfig `json:"config"`
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteRetrieveResults writes retrieval hits to w in the given format.
func WriteRetrieveResults(w io.Writer, resp *RetrieveResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "\nFound %d chunks in %dms\n\n", len(resp.Chunks), resp.QueryTime)
	for i, c := range resp.Chunks {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "[%d] Score: %.4f | %s (part %d)\n", i+1, c.Score, c.Filename, c.Index+1)
		fmt.Fprintf(w, "Document: %s\n", c.DocumentID)
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(c.Snippet, 240))
	}
	return nil
}

// WriteStatus writes server status to w in the given format.
func WriteStatus(w io.Writer, st *StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "documents:          %d   # uploaded documents\n", st.Documents)
	fmt.Fprintf(w, "chunks:             %d   # stored chunks\n", st.Chunks)
	fmt.Fprintf(w, "vector_index_size:  %d   # vectors in the index\n", st.VectorIndexSize)
	if st.BlobUsageBytes != nil {
		fmt.Fprintf(w, "blob_usage_bytes:   %d   # uploaded files on disk\n", *st.BlobUsageBytes)
	}
	c := st.Config
	fmt.Fprintln(w)
	fmt.Fprintln(w, "# configuration")
	fmt.Fprintf(w, "vector_index_type:  %s\n", c.VectorIndexType)
	fmt.Fprintf(w, "blob_store_type:    %s\n", c.BlobStoreType)
	fmt.Fprintf(w, "embedding:          %s (%d dims)\n", c.EmbeddingProvider, c.EmbeddingDimensions)
	if c.GenerationModel != "" {
		fmt.Fprintf(w, "generation:         %s (%s)\n", c.GenerationProvider, c.GenerationModel)
	} else {
		fmt.Fprintf(w, "generation:         %s\n", c.GenerationProvider)
	}
	fmt.Fprintf(w, "chunk_size:         %d\n", c.ChunkSize)
	fmt.Fprintf(w, "chunk_overlap:      %d\n", c.ChunkOverlap)
	fmt.Fprintf(w, "top_k:              %d\n", c.TopK)
	return nil
}

// WriteDocument writes a single document record.
func WriteDocument(w io.Writer, doc *models.Document, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, doc)
	}
	fmt.Fprintf(w, "%s  %-10s  %s", doc.ID, doc.Status, doc.Filename)
	if doc.Status == models.StatusIngested {
		fmt.Fprintf(w, "  (%d chunks", doc.ChunkCount)
		if doc.FailedChunks > 0 {
			fmt.Fprintf(w, ", %d failed", doc.FailedChunks)
		}
		fmt.Fprint(w, ")")
	}
	if doc.Error != "" {
		fmt.Fprintf(w, "  error: %s", doc.Error)
	}
	fmt.Fprintln(w)
	return nil
}

// WriteCitations lists the sources of a chat answer.
func WriteCitations(w io.Writer, citations []models.Citation) {
	if len(citations) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSources:")
	for i, c := range citations {
		fmt.Fprintf(w, "  [%d] %s (part %d, score %.2f)\n", i+1, c.Filename, c.Index+1, c.Score)
	}
}
