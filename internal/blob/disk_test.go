package blob

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

func TestDiskStore_PutGetDelete(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key, err := store.Put(ctx, "alice", "Report.PDF", []byte("hello"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "alice/"), "key %q should be owner-prefixed", key)
	assert.True(t, strings.HasSuffix(key, ".pdf"), "key %q should keep the lowercase extension", key)

	data, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	usage, err := store.Usage()
	require.NoError(t, err)
	assert.Equal(t, int64(5), usage)

	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key), "deleting twice is not an error")

	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, models.ErrStorage)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDiskStore_UniqueKeys(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	k1, err := store.Put(ctx, "bob", "a.txt", []byte("one"))
	require.NoError(t, err)
	k2, err := store.Put(ctx, "bob", "a.txt", []byte("two"))
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)
}

func TestDiskStore_RejectsTraversal(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Get(ctx, "../etc/passwd")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = store.Put(ctx, "a/b", "x.txt", []byte("x"))
	assert.ErrorIs(t, err, models.ErrValidation)

	assert.ErrorIs(t, store.Delete(ctx, "alice/.."), models.ErrValidation)
}

func TestDiskStore_SizeAndPresign(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key, err := store.Put(ctx, "alice", "a.txt", []byte("hello"))
	require.NoError(t, err)
	size, err := store.Size(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	_, err = store.Size(ctx, "alice/missing.txt")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = store.PresignPut(ctx, key, time.Hour)
	assert.ErrorIs(t, err, ErrPresignUnsupported)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestNew(t *testing.T) {
	store, err := New(context.Background(), &config.BlobConfig{Type: "disk", Path: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &DiskStore{}, store)

	_, err = New(context.Background(), &config.BlobConfig{Type: "ftp"})
	assert.Error(t, err)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", contentType("u/x.pdf"))
	assert.Equal(t, "application/octet-stream", contentType("u/x"))
}
