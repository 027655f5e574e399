package minio

import (
	"context"
	"errors"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/otic/vision/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Keys(t *testing.T) {
	s := NewStore(nil, "bucket", "products/")
	assert.Equal(t, "products/sku-1.rec", s.key("sku-1.rec"))
	assert.Equal(t, "sku-1.rec", s.rel("products/sku-1.rec"))

	bare := NewStore(nil, "bucket", "")
	assert.Equal(t, "sku-1.rec", bare.key("sku-1.rec"))
	assert.Equal(t, "a/b", bare.rel("a/b"))
}

func TestMapError(t *testing.T) {
	missing := minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}
	assert.Equal(t, blobstore.ErrNotFound, mapError(missing))

	other := errors.New("connection refused")
	assert.Equal(t, other, mapError(other))
}

// TestStore_Integration requires a running MinIO instance at MINIO_ENDPOINT.
func TestStore_Integration(t *testing.T) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("Skipping MinIO integration test: MINIO_ENDPOINT not set")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	require.NoError(t, err)

	ctx := context.Background()
	bucket := "vision-test"
	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, "run-"+time.Now().UTC().Format("20060102150405")+"/")

	data := []byte("hello minio world")
	require.NoError(t, store.Put(ctx, "products/a.rec", data))
	defer store.Delete(ctx, "products/a.rec") //nolint:errcheck

	got, err := blobstore.ReadFile(ctx, store, "products/a.rec")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	blob, err := store.Open(ctx, "products/a.rec")
	require.NoError(t, err)
	buf := make([]byte, 5)
	n, err := blob.ReadAt(ctx, buf, 6)
	require.NoError(t, err)
	assert.Equal(t, "minio", string(buf[:n]))

	names, err := store.List(ctx, "products/")
	require.NoError(t, err)
	assert.Equal(t, []string{"products/a.rec"}, names)

	_, err = store.Open(ctx, "missing")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
