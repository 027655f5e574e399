package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]BlobStore {
	return map[string]BlobStore{
		"Memory": NewMemoryStore(),
		"Local":  NewLocalStore(t.TempDir()),
	}
}

func TestBlobStore_Lifecycle(t *testing.T) {
	ctx := context.Background()

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			data := []byte("hello world, this is a product record")
			require.NoError(t, store.Put(ctx, "products/sku-1.rec", data))

			blob, err := store.Open(ctx, "products/sku-1.rec")
			require.NoError(t, err)
			defer blob.Close()
			assert.Equal(t, int64(len(data)), blob.Size())

			buf := make([]byte, 5)
			n, err := blob.ReadAt(ctx, buf, 6)
			require.NoError(t, err)
			assert.Equal(t, 5, n)
			assert.Equal(t, "world", string(buf))

			got, err := ReadFile(ctx, store, "products/sku-1.rec")
			require.NoError(t, err)
			assert.Equal(t, data, got)

			// Callers own the returned bytes.
			got[0] = 'X'
			again, err := ReadFile(ctx, store, "products/sku-1.rec")
			require.NoError(t, err)
			assert.Equal(t, data, again)
		})
	}
}

func TestBlobStore_Replace(t *testing.T) {
	ctx := context.Background()

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put(ctx, "a", []byte("first version")))
			require.NoError(t, store.Put(ctx, "a", []byte("v2")))

			got, err := ReadFile(ctx, store, "a")
			require.NoError(t, err)
			assert.Equal(t, "v2", string(got))

			names, err := store.List(ctx, "")
			require.NoError(t, err)
			assert.Equal(t, []string{"a"}, names)
		})
	}
}

func TestBlobStore_ListDelete(t *testing.T) {
	ctx := context.Background()

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			names, err := store.List(ctx, "")
			require.NoError(t, err)
			assert.Empty(t, names)

			for _, n := range []string{"products/b.rec", "products/a.rec", "meta/info", "products/empty.rec"} {
				data := []byte(n)
				if n == "products/empty.rec" {
					data = nil
				}
				require.NoError(t, store.Put(ctx, n, data))
			}

			names, err = store.List(ctx, "products/")
			require.NoError(t, err)
			assert.Equal(t, []string{"products/a.rec", "products/b.rec", "products/empty.rec"}, names)

			empty, err := ReadFile(ctx, store, "products/empty.rec")
			require.NoError(t, err)
			assert.Empty(t, empty)

			require.NoError(t, store.Delete(ctx, "products/a.rec"))
			require.NoError(t, store.Delete(ctx, "products/a.rec"))

			_, err = store.Open(ctx, "products/a.rec")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = ReadFile(ctx, store, "products/a.rec")
			assert.ErrorIs(t, err, ErrNotFound)

			names, err = store.List(ctx, "")
			require.NoError(t, err)
			assert.Equal(t, []string{"meta/info", "products/b.rec", "products/empty.rec"}, names)
		})
	}
}

func TestBlobStore_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, store.Put(ctx, "a", []byte("x")), context.Canceled)
			_, err := store.Open(ctx, "a")
			assert.ErrorIs(t, err, context.Canceled)
		})
	}
}

func TestLocalStore_SkipsTempFiles(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := NewLocalStore(root)

	require.NoError(t, store.Put(ctx, "a.rec", []byte("a")))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".tmp-b.rec-123"), []byte("partial"), 0o600))

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.rec"}, names)
}

func TestLocalStore_MissingRoot(t *testing.T) {
	store := NewLocalStore(filepath.Join(t.TempDir(), "missing"))
	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}
