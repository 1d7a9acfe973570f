package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

// DiskStore keeps blobs as files under a root directory.
type DiskStore struct {
	root string
}

// NewDiskStore creates root if needed.
func NewDiskStore(root string) (*DiskStore, error) {
	if root == "" {
		return nil, fmt.Errorf("blob path is required")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("%w: create blob directory: %w", models.ErrStorage, err)
	}
	return &DiskStore{root: root}, nil
}

// Root returns the directory blobs are written to.
func (d *DiskStore) Root() string {
	return d.root
}

// Put writes data to a temporary file and renames it into place.
func (d *DiskStore) Put(ctx context.Context, ownerID, filename string, data []byte) (string, error) {
	key, err := NewKey(ownerID, filename)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrStorage, err)
	}
	dst := d.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("%w: create owner directory: %w", models.ErrStorage, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("%w: create temp file: %w", models.ErrStorage, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("%w: write blob: %w", models.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: close blob: %w", models.ErrStorage, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("%w: move blob into place: %w", models.ErrStorage, err)
	}
	return key, nil
}

// Get reads the blob stored under key.
func (d *DiskStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStorage, err)
	}
	data, err := os.ReadFile(d.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %w: blob %s", models.ErrStorage, models.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read blob: %w", models.ErrStorage, err)
	}
	return data, nil
}

// Delete removes the blob; a missing blob is not an error.
func (d *DiskStore) Delete(ctx context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := os.Remove(d.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: delete blob: %w", models.ErrStorage, err)
	}
	return nil
}

// Size returns the size of the blob stored under key.
func (d *DiskStore) Size(ctx context.Context, key string) (int64, error) {
	if err := validKey(key); err != nil {
		return 0, err
	}
	info, err := os.Stat(d.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("%w: %w: blob %s", models.ErrStorage, models.ErrNotFound, key)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: stat blob: %w", models.ErrStorage, err)
	}
	return info.Size(), nil
}

// PresignPut is not available for files on disk.
func (d *DiskStore) PresignPut(context.Context, string, time.Duration) (string, error) {
	return "", ErrPresignUnsupported
}

// Usage returns the total size in bytes of all stored blobs.
func (d *DiskStore) Usage() (int64, error) {
	var total int64
	err := filepath.WalkDir(d.root, func(_ string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if entry.IsDir() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}

func (d *DiskStore) path(key string) string {
	return filepath.Join(d.root, filepath.FromSlash(key))
}
