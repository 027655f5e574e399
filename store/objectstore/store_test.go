package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/otic/vision/blobstore"
	"github.com/otic/vision/codec"
	"github.com/otic/vision/feature"
	"github.com/otic/vision/store"
	"github.com/otic/vision/store/storetest"
	"github.com/otic/vision/testutil"
	"github.com/otic/vision/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T, blobs blobstore.BlobStore, opts ...Option) *Store {
	t.Helper()
	s, err := Open(context.Background(), blobs, storetest.Codec(t), opts...)
	require.NoError(t, err)
	return s
}

func TestConformance(t *testing.T) {
	t.Run("Memory", func(t *testing.T) {
		storetest.Run(t, func(t *testing.T) store.TokenStore {
			return open(t, blobstore.NewMemoryStore())
		})
	})
	t.Run("LocalZSTD", func(t *testing.T) {
		storetest.Run(t, func(t *testing.T) store.TokenStore {
			return open(t, blobstore.NewLocalStore(t.TempDir()), WithCompression(CompressionZSTD))
		})
	})
	t.Run("DynamoRegistry", func(t *testing.T) {
		storetest.Run(t, func(t *testing.T) store.TokenStore {
			reg := NewDynamoRegistry(newMockDDBClient(), "checksums")
			return open(t, blobstore.NewMemoryStore(), WithRegistry(reg), WithCodec(codec.JSON{}))
		})
	})
}

func TestOpen_Invalid(t *testing.T) {
	ctx := context.Background()
	_, err := Open(ctx, nil, storetest.Codec(t))
	assert.ErrorIs(t, err, feature.ErrInvalidInput)

	_, err = Open(ctx, blobstore.NewMemoryStore(), storetest.Codec(t), WithCompression(9))
	assert.ErrorIs(t, err, feature.ErrInvalidInput)
}

func TestOpen_SeedsRegistry(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	p := storetest.Product(t, testutil.NewRNG(1), "p1")
	require.NoError(t, open(t, blobs).Write(ctx, p))

	// A fresh process sees the existing claim.
	s := open(t, blobs)
	dup := storetest.ProductWithDescriptor(t, p.Token.Descriptor, "p2")
	assert.ErrorIs(t, s.Write(ctx, dup), store.ErrConflict)
}

func TestWrite_ReplaceReleasesChecksum(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()
	s := open(t, blobstore.NewMemoryStore(), WithRegistry(reg))
	rng := testutil.NewRNG(2)

	first := storetest.Product(t, rng, "p1")
	require.NoError(t, s.Write(ctx, first))
	second := storetest.Product(t, rng, "p1")
	require.NoError(t, s.Write(ctx, second))

	_, ok := reg.Owner(first.Token.Checksum)
	assert.False(t, ok)
	owner, ok := reg.Owner(second.Token.Checksum)
	require.True(t, ok)
	assert.Equal(t, "p1", owner)

	// The old appearance can now be registered by another product.
	require.NoError(t, s.Write(ctx, storetest.ProductWithDescriptor(t, first.Token.Descriptor, "p2")))
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	s := open(t, blobs)
	p := storetest.Product(t, testutil.NewRNG(3), "p/1 with spaces")
	require.NoError(t, s.Write(ctx, p))
	assert.Equal(t, 1, blobs.Len())

	require.NoError(t, s.Delete(ctx, p.ProductID))
	require.NoError(t, s.Delete(ctx, p.ProductID))
	assert.Equal(t, 0, blobs.Len())

	_, err := s.ReadByID(ctx, p.ProductID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, s.Write(ctx, storetest.ProductWithDescriptor(t, p.Token.Descriptor, "p2")))
}

func TestCorruptRecords(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	s := open(t, blobs)
	p := storetest.Product(t, testutil.NewRNG(4), "p1")
	require.NoError(t, s.Write(ctx, p))

	good, err := blobs.Get(ctx, recordName("p1"))
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"Empty", nil},
		{"Magic", append([]byte("XXX"), good[3:]...)},
		{"Version", append(append([]byte(nil), good[:3]...), append([]byte{9}, good[4:]...)...)},
		{"Truncated", good[:len(good)-3]},
		{"Codec", bytes.Replace(good, []byte("go-json"), []byte("gob-xyz"), 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, blobs.Put(ctx, recordName("p1"), tt.data))

			_, err := s.ReadByID(ctx, "p1")
			assert.ErrorIs(t, err, token.ErrCorruptToken)
			assert.NotErrorIs(t, err, store.ErrUnavailable)

			_, err = s.ReadAll(ctx)
			assert.ErrorIs(t, err, token.ErrCorruptToken)
		})
	}

	t.Run("Misplaced", func(t *testing.T) {
		require.NoError(t, blobs.Put(ctx, recordName("p1"), good))
		require.NoError(t, blobs.Put(ctx, recordName("other"), good))
		_, err := s.ReadByID(ctx, "other")
		assert.ErrorIs(t, err, token.ErrCorruptToken)
	})

	t.Run("DeleteCorrupt", func(t *testing.T) {
		require.NoError(t, blobs.Put(ctx, recordName("p1"), []byte("junk")))
		require.NoError(t, s.Delete(ctx, "p1"))
		_, err := s.ReadByID(ctx, "p1")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestReadAll_IgnoresForeignBlobs(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	require.NoError(t, blobs.Put(ctx, "products/README", []byte("not a record")))
	require.NoError(t, blobs.Put(ctx, "other/x.rec", []byte("outside the prefix")))

	s := open(t, blobs)
	all, err := s.ReadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMixedCodecsAndCompression(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	rng := testutil.NewRNG(5)

	var want []store.ProductMatch
	i := 0
	for _, c := range []codec.Codec{codec.JSON{}, codec.GoJSON{}} {
		for _, comp := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
			s := open(t, blobs, WithCodec(c), WithCompression(comp), WithRegistry(NewMemoryRegistry()))
			p := storetest.Product(t, rng, fmt.Sprintf("p%d", i))
			require.NoError(t, s.Write(ctx, p))
			want = append(want, p)
			i++
		}
	}

	all, err := open(t, blobs, WithReadConcurrency(2)).ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, len(want))
	for i := range want {
		storetest.AssertSameProduct(t, want[i], all[i])
	}
}

type failingBlobs struct {
	*blobstore.MemoryStore
	err error
}

func (f *failingBlobs) List(context.Context, string) ([]string, error) { return nil, f.err }

func (f *failingBlobs) Get(context.Context, string) ([]byte, error) { return nil, f.err }

func (f *failingBlobs) Put(context.Context, string, []byte) error { return f.err }

func TestUnavailable(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")
	blobs := &failingBlobs{MemoryStore: blobstore.NewMemoryStore(), err: boom}

	_, err := Open(ctx, blobs, storetest.Codec(t))
	assert.ErrorIs(t, err, store.ErrUnavailable)

	reg := NewMemoryRegistry()
	s := open(t, blobs, WithRegistry(reg))

	_, err = s.ReadAll(ctx)
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.ErrorIs(t, err, boom)

	_, err = s.ReadByID(ctx, "p1")
	assert.ErrorIs(t, err, store.ErrUnavailable)

	p := storetest.Product(t, testutil.NewRNG(6), "p1")
	assert.ErrorIs(t, s.Write(ctx, p), store.ErrUnavailable)
}

func TestWrite_PutFailureReleasesClaim(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()
	blobs := &putFailing{MemoryStore: blobstore.NewMemoryStore()}
	s := open(t, blobs, WithRegistry(reg))

	p := storetest.Product(t, testutil.NewRNG(7), "p1")
	assert.ErrorIs(t, s.Write(ctx, p), store.ErrUnavailable)
	_, ok := reg.Owner(p.Token.Checksum)
	assert.False(t, ok)
}

type putFailing struct {
	*blobstore.MemoryStore
}

func (putFailing) Put(context.Context, string, []byte) error { return errors.New("disk full") }

func TestWrite_Canceled(t *testing.T) {
	s := open(t, blobstore.NewMemoryStore())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Write(ctx, storetest.Product(t, testutil.NewRNG(8), "p1")), context.Canceled)

	_, err := s.ReadAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
