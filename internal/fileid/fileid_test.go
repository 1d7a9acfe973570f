package fileid

import (
	"testing"

	"github.com/google/uuid"
)

func TestInboxDocID(t *testing.T) {
	id1 := InboxDocID("alice", "/foo/bar.txt")
	id2 := InboxDocID("alice", "/foo/bar.txt")
	if id1 != id2 {
		t.Errorf("same path should give same ID: %q vs %q", id1, id2)
	}
	if _, err := uuid.Parse(id1); err != nil {
		t.Errorf("ID should be a UUID: %q", id1)
	}
}

func TestInboxDocID_differentPathsAndOwners(t *testing.T) {
	if InboxDocID("alice", "/foo/bar.txt") == InboxDocID("alice", "/foo/baz.txt") {
		t.Error("different paths should give different IDs")
	}
	if InboxDocID("alice", "/foo/bar.txt") == InboxDocID("bob", "/foo/bar.txt") {
		t.Error("different owners should give different IDs")
	}
}

func TestInboxDocID_normalized(t *testing.T) {
	id1 := InboxDocID("a", "/foo/bar")
	id2 := InboxDocID("a", "/foo/bar/")
	id3 := InboxDocID("a", "/foo/./bar")
	if id1 != id2 {
		t.Errorf("paths differing only by trailing slash should match: %q vs %q", id1, id2)
	}
	if id1 != id3 {
		t.Errorf("paths with . should normalize: %q vs %q", id1, id3)
	}
}

func TestChunkID(t *testing.T) {
	if ChunkID("doc", 0) != ChunkID("doc", 0) {
		t.Error("chunk IDs should be deterministic")
	}
	if ChunkID("doc", 0) == ChunkID("doc", 1) {
		t.Error("different indexes should differ")
	}
	if ChunkID("doc1", 1) == ChunkID("doc", 11) {
		t.Error("document and index must not run together")
	}
	if _, err := uuid.Parse(ChunkID("doc", 3)); err != nil {
		t.Errorf("chunk ID should be a UUID: %v", err)
	}
}

func TestNewID(t *testing.T) {
	if NewID() == NewID() {
		t.Error("NewID should be random")
	}
}

func TestContentHash(t *testing.T) {
	if ContentHash([]byte("one")) != ContentHash([]byte("one")) {
		t.Error("content hash should be deterministic")
	}
	if ContentHash([]byte("one")) == ContentHash([]byte("two")) {
		t.Error("different content should hash differently")
	}
	if got := len(ContentHash(nil)); got != 64 {
		t.Errorf("hash length = %d, want 64", got)
	}
}
