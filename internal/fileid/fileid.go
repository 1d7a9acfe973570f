// Package fileid provides stable identifiers for documents and chunks.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

var (
	inboxNamespace = uuid.MustParse("0f6a1c1e-5b1d-4c4b-9a52-6c1f3d8e2a10")
	chunkNamespace = uuid.MustParse("7c9e2d4a-1b3f-4e8a-b6d5-2f0a9c8e7b31")
)

// NewID returns a random identifier for documents, conversations and messages.
func NewID() string {
	return uuid.NewString()
}

// InboxDocID returns a stable document ID for a file imported from a watched
// directory. The same owner and path always yield the same ID, so edits to
// the file replace the document instead of duplicating it.
func InboxDocID(ownerID, absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	return uuid.NewSHA1(inboxNamespace, []byte(ownerID+"\x00"+normalized)).String()
}

// ChunkID returns the identifier of the chunk at index within a document.
// Re-chunking a document reproduces the same IDs, which makes vector upserts
// overwrite rather than duplicate.
func ChunkID(documentID string, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(documentID+"#"+strconv.Itoa(index))).String()
}

// ContentHash returns the hex SHA-256 of a file's bytes.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
