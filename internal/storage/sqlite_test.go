package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newDoc(id, owner string) *models.Document {
	return &models.Document{
		ID: id, OwnerID: owner, Filename: id + ".txt", Format: "txt",
		StorageKey: owner + "/" + id + ".txt", Status: models.StatusUploaded,
	}
}

func TestSQLiteStorage_DocumentCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := newDoc("doc1", "alice")
	doc.SizeBytes = 42
	doc.ContentHash = "abc123"
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if doc.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	got, err := store.GetDocument(ctx, "doc1")
	if err != nil {
		t.Fatal(err)
	}
	if got.OwnerID != "alice" || got.SizeBytes != 42 || got.ContentHash != "abc123" || got.Status != models.StatusUploaded {
		t.Errorf("got %+v", got)
	}

	_ = store.CreateDocument(ctx, newDoc("doc2", "bob"))
	list, err := store.ListDocuments(ctx, "alice", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != "doc1" {
		t.Errorf("alice should list only doc1, got %d docs", len(list))
	}

	if err := store.DeleteDocument(ctx, "doc1"); err != nil {
		t.Fatal(err)
	}
	_, err = store.GetDocument(ctx, "doc1")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.DeleteDocument(ctx, "doc1"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStorage_UpgradesDocumentsTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	_, err = db.Exec(`CREATE TABLE documents (
		id TEXT PRIMARY KEY, owner_id TEXT NOT NULL, filename TEXT NOT NULL, format TEXT NOT NULL,
		storage_key TEXT NOT NULL, size_bytes INTEGER NOT NULL DEFAULT 0, status TEXT NOT NULL,
		chunk_count INTEGER NOT NULL DEFAULT 0, failed_chunks INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '', created_at TIMESTAMP NOT NULL, updated_at TIMESTAMP NOT NULL)`)
	if err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	store, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()
	doc := newDoc("d1", "u")
	doc.ContentHash = "h1"
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetDocument(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ContentHash != "h1" {
		t.Errorf("content hash = %q, want h1", got.ContentHash)
	}
}

func TestSQLiteStorage_IngestionTransitions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_ = store.CreateDocument(ctx, newDoc("d1", "u"))

	doc, err := store.StartIngestion(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Status != models.StatusProcessing {
		t.Fatalf("status=%s, want processing", doc.Status)
	}

	if _, err := store.StartIngestion(ctx, "d1"); !errors.Is(err, models.ErrIngestInProgress) {
		t.Errorf("concurrent start: expected ErrIngestInProgress, got %v", err)
	}

	doc, err = store.FinishIngestion(ctx, "d1", IngestionOutcome{Status: models.StatusFailed, ChunkCount: 3, FailedChunks: 1, Error: "boom"})
	if err != nil {
		t.Fatal(err)
	}
	if doc.Status != models.StatusFailed || doc.ChunkCount != 3 || doc.FailedChunks != 1 || doc.Error != "boom" {
		t.Errorf("unexpected outcome: %+v", doc)
	}

	if _, err := store.FinishIngestion(ctx, "d1", IngestionOutcome{Status: models.StatusIngested}); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("finish without run: expected ErrInvalidTransition, got %v", err)
	}

	// A re-run clears the previous error.
	doc, err = store.StartIngestion(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Error != "" || doc.FailedChunks != 0 {
		t.Errorf("restart should clear error state: %+v", doc)
	}

	if _, err := store.StartIngestion(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStorage_StartIngestionIsExclusive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_ = store.CreateDocument(ctx, newDoc("d1", "u"))

	var wg sync.WaitGroup
	var mu sync.Mutex
	started := 0
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.StartIngestion(ctx, "d1"); err == nil {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if started != 1 {
		t.Errorf("exactly one run should start, got %d", started)
	}
}

func TestSQLiteStorage_FailInterrupted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_ = store.CreateDocument(ctx, newDoc("d1", "u"))
	_ = store.CreateDocument(ctx, newDoc("d2", "u"))
	_, _ = store.StartIngestion(ctx, "d1")

	n, err := store.FailInterrupted(ctx, "interrupted")
	if err != nil || n != 1 {
		t.Fatalf("FailInterrupted = %d, %v", n, err)
	}
	doc, _ := store.GetDocument(ctx, "d1")
	if doc.Status != models.StatusFailed || doc.Error != "interrupted" {
		t.Errorf("got %+v", doc)
	}
}

func TestSQLiteStorage_Chunks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_ = store.CreateDocument(ctx, newDoc("d1", "alice"))
	_ = store.CreateDocument(ctx, newDoc("d2", "bob"))

	chunks := []*models.Chunk{
		{ID: "c1", DocumentID: "d1", OwnerID: "alice", Index: 0, Content: "chunk1", Embedding: []float32{1, 0}},
		{ID: "c2", DocumentID: "d1", OwnerID: "alice", Index: 1, Content: "chunk2", Embedding: []float32{0, 1}},
		{ID: "c3", DocumentID: "d2", OwnerID: "bob", Index: 0, Content: "bob's", Embedding: []float32{0.5, 0.5}},
	}
	if err := store.UpsertChunks(ctx, chunks); err != nil {
		t.Fatal(err)
	}
	// Re-upsert overwrites rather than duplicating.
	if err := store.UpsertChunks(ctx, []*models.Chunk{{ID: "c2", DocumentID: "d1", OwnerID: "alice", Index: 1, Content: "chunk2 v2"}}); err != nil {
		t.Fatal(err)
	}

	list, err := store.GetChunksByDocumentID(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[1].Content != "chunk2 v2" {
		t.Errorf("unexpected chunks: %+v", list)
	}

	byID, err := store.GetChunksByIDs(ctx, "alice", []string{"c1", "c3", "nope"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byID) != 1 || byID["c1"] == nil {
		t.Errorf("owner scoping failed: %v", byID)
	}

	var seen []string
	err = store.ForEachChunk(ctx, func(c *models.Chunk) error {
		seen = append(seen, c.ID)
		if c.ID == "c1" && (len(c.Embedding) != 2 || c.Embedding[0] != 1) {
			t.Errorf("embedding not round-tripped: %v", c.Embedding)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	// c2 lost its embedding on the second upsert.
	if len(seen) != 2 {
		t.Errorf("expected 2 embedded chunks, got %v", seen)
	}

	if err := store.DeleteChunks(ctx, []string{"c1"}); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteDocument(ctx, "d1"); err != nil {
		t.Fatal(err)
	}
	n, _ := store.CountChunks(ctx)
	if n != 1 {
		t.Errorf("chunks should cascade with their document, %d left", n)
	}
}

func TestSQLiteStorage_Messages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv := &models.Conversation{ID: "conv1", OwnerID: "alice", Title: "Hello"}
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatal(err)
	}

	user := &models.Message{ConversationID: "conv1", Role: models.RoleUser, Content: "hi", Status: models.MessageComplete}
	if err := store.AppendMessage(ctx, user); err != nil {
		t.Fatal(err)
	}
	reply := &models.Message{
		ConversationID: "conv1", Role: models.RoleAssistant, Content: "Hello, the docum",
		Status: models.MessagePartial, Interruption: models.InterruptionError, Citations: []string{"c1", "c2"},
	}
	if err := store.AppendMessage(ctx, reply); err != nil {
		t.Fatal(err)
	}
	if user.Seq != 1 || reply.Seq != 2 {
		t.Errorf("seq = %d, %d", user.Seq, reply.Seq)
	}
	if !reply.CreatedAt.After(user.CreatedAt) {
		t.Error("created_at must be strictly increasing")
	}

	msgs, err := store.ListMessages(ctx, "conv1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].ID != user.ID {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	got := msgs[1]
	if got.Status != models.MessagePartial || got.Interruption != models.InterruptionError || len(got.Citations) != 2 {
		t.Errorf("assistant message not stored faithfully: %+v", got)
	}

	tail, _ := store.ListMessages(ctx, "conv1", 1)
	if len(tail) != 1 || tail[0].Seq != 2 {
		t.Errorf("limit should keep the latest message: %+v", tail)
	}

	if _, err := store.GetConversation(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	convs, _ := store.ListConversations(ctx, "alice", 0, 10)
	if len(convs) != 1 {
		t.Errorf("expected 1 conversation, got %d", len(convs))
	}
}

func TestSQLiteStorage_ConcurrentAppend(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_ = store.CreateConversation(ctx, &models.Conversation{ID: "c", OwnerID: "u"})

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.AppendMessage(ctx, &models.Message{ConversationID: "c", Role: models.RoleUser, Content: "x", Status: models.MessageComplete})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	msgs, _ := store.ListMessages(ctx, "c", 0)
	if len(msgs) != 10 {
		t.Fatalf("expected 10 messages, got %d", len(msgs))
	}
	for i, m := range msgs {
		if m.Seq != i+1 {
			t.Fatalf("gap in sequence at %d: seq %d", i, m.Seq)
		}
	}
}

func TestSQLiteStorage_Counts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	n, err := store.CountDocuments(ctx)
	if err != nil || n != 0 {
		t.Errorf("CountDocuments: %v, %d", err, n)
	}
	_ = store.CreateDocument(ctx, newDoc("x", "u"))
	n, _ = store.CountDocuments(ctx)
	if n != 1 {
		t.Errorf("expected 1 document, got %d", n)
	}
}

func TestEmbeddingCodec(t *testing.T) {
	in := []float32{0.25, -1.5, 3}
	out, err := decodeEmbedding(encodeEmbedding(in))
	if err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("index %d: got %v want %v", i, out[i], in[i])
		}
	}
	if _, err := decodeEmbedding([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}
