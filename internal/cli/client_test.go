package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func newTestAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-User-ID") != "alice" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = fmt.Fprint(w, `{"error":"missing X-User-ID header","kind":"authorization"}`)
			return
		}
		_ = json.NewEncoder(w).Encode(StatusResponse{Documents: 2, Chunks: 7, VectorIndexSize: 7})
	})
	mux.HandleFunc("/api/v1/retrieve", func(w http.ResponseWriter, r *http.Request) {
		var q models.RetrieveQuery
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil || q.Query == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = fmt.Fprint(w, `{"error":"validation error: query cannot be empty","kind":"validation"}`)
			return
		}
		_ = json.NewEncoder(w).Encode(RetrieveResponse{Query: q.Query, Chunks: []RetrievedChunk{{ChunkID: "c1"}}})
	})
	mux.HandleFunc("/api/v1/chat/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, "event: delta\ndata: {\"delta\":\"ok\"}\n\n")
		_, _ = fmt.Fprint(w, "event: completed\ndata: {\"conversation_id\":\"c\",\"message_id\":\"m\",\"citations\":[]}\n\n")
	})
	mux.HandleFunc("/api/v1/inbox/directories", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_, _ = fmt.Fprint(w, `{"directories":["/srv/inbox"]}`)
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			_, _ = fmt.Fprint(w, `{"status":"added"}`)
		case http.MethodDelete:
			if r.URL.Query().Get("path") != "/srv/inbox" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = fmt.Fprint(w, `{"status":"removed"}`)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Status(t *testing.T) {
	srv := newTestAPI(t)
	st, err := NewClient(srv.URL+"/", "alice", "").Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Documents != 2 || st.Chunks != 7 {
		t.Errorf("status: %+v", st)
	}

	_, err = NewClient(srv.URL, "", "").Status(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnauthorized || apiErr.Kind != "authorization" {
		t.Errorf("api error: %+v", apiErr)
	}
}

func TestClient_Retrieve(t *testing.T) {
	srv := newTestAPI(t)
	c := NewClient(srv.URL, "alice", "")
	res, err := c.Retrieve(context.Background(), &models.RetrieveQuery{Query: "q"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Chunks) != 1 || res.Query != "q" {
		t.Errorf("retrieve: %+v", res)
	}
	_, err = c.Retrieve(context.Background(), &models.RetrieveQuery{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != "validation" {
		t.Fatalf("expected validation APIError, got %v", err)
	}
}

func TestClient_Chat(t *testing.T) {
	srv := newTestAPI(t)
	var out bytes.Buffer
	res, err := NewClient(srv.URL, "alice", "").Chat(context.Background(), &models.ChatRequest{Message: "hi"}, &out)
	if err != nil {
		t.Fatal(err)
	}
	if out.String() != "ok" || res.MessageID != "m" {
		t.Errorf("chat: %q %+v", out.String(), res)
	}
}

func TestClient_Inbox(t *testing.T) {
	srv := newTestAPI(t)
	c := NewClient(srv.URL, "alice", "")
	ctx := context.Background()
	dirs, err := c.InboxDirectories(ctx)
	if err != nil || len(dirs) != 1 || dirs[0] != "/srv/inbox" {
		t.Fatalf("directories: %v %v", dirs, err)
	}
	if err := c.AddInboxDirectory(ctx, "/srv/inbox"); err != nil {
		t.Fatal(err)
	}
	if err := c.RemoveInboxDirectory(ctx, "/srv/inbox"); err != nil {
		t.Fatal(err)
	}
	if err := c.RemoveInboxDirectory(ctx, "/elsewhere"); err == nil {
		t.Fatal("expected error for unknown directory")
	}
}
