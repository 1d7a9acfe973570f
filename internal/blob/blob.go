// Package blob stores the raw bytes of uploaded documents.
package blob

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

// Store is the object storage collaborator. Failures wrap models.ErrStorage;
// a missing key additionally wraps models.ErrNotFound.
type Store interface {
	// Put stores data under a new key derived from the owner and filename.
	Put(ctx context.Context, ownerID, filename string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// Size returns the stored size of key.
	Size(ctx context.Context, key string) (int64, error)
	// PresignPut returns a URL a client can PUT the object's bytes to
	// directly, valid for expiry.
	PresignPut(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// ErrPresignUnsupported is returned by stores that cannot hand out upload URLs.
var ErrPresignUnsupported = fmt.Errorf("%w: presigned uploads require an object store", models.ErrValidation)

// Store types.
const (
	TypeDisk  = "disk"
	TypeMinio = "minio"
)

// New creates the blob store selected by cfg.
func New(ctx context.Context, cfg *config.BlobConfig) (Store, error) {
	switch cfg.Type {
	case TypeDisk, "":
		return NewDiskStore(cfg.Path)
	case TypeMinio:
		return NewMinioStore(ctx, &cfg.Minio)
	default:
		return nil, fmt.Errorf("unknown blob store type: %s (supported: disk, minio)", cfg.Type)
	}
}

// NewKey returns a fresh object key of the form {owner}/{uuid}.{ext}.
func NewKey(ownerID, filename string) (string, error) {
	if err := validSegment(ownerID); err != nil {
		return "", err
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	key := ownerID + "/" + uuid.NewString()
	if ext != "" {
		key += "." + ext
	}
	return key, nil
}

// validKey rejects keys that could escape the owner's prefix.
func validKey(key string) error {
	parts := strings.Split(key, "/")
	if len(parts) != 2 {
		return fmt.Errorf("%w: malformed blob key %q", models.ErrValidation, key)
	}
	for _, p := range parts {
		if err := validSegment(p); err != nil {
			return err
		}
	}
	return nil
}

func validSegment(s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return fmt.Errorf("%w: invalid blob key segment %q", models.ErrValidation, s)
	}
	return nil
}

func contentType(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
