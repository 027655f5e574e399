package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/otic/vision/feature"
	"github.com/otic/vision/store"
	"github.com/otic/vision/testutil"
	"github.com/otic/vision/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// BinsPerChannel is the histogram resolution of conformance fixtures.
const BinsPerChannel = 4

// Codec returns the token codec used by conformance fixtures.
func Codec(t testing.TB) *token.Codec {
	t.Helper()
	c, err := token.NewCodec(BinsPerChannel)
	require.NoError(t, err)
	return c
}

// Product builds a registered product with a random token.
func Product(t testing.TB, rng *testutil.RNG, id string) store.ProductMatch {
	t.Helper()
	return ProductWithDescriptor(t, testutil.RandomDescriptor(rng, BinsPerChannel), id)
}

// ProductWithDescriptor builds a registered product around d.
func ProductWithDescriptor(t testing.TB, d feature.Descriptor, id string) store.ProductMatch {
	t.Helper()
	tok, err := Codec(t).Encode(d)
	require.NoError(t, err)
	return store.ProductMatch{
		ProductID:    id,
		BrandName:    "Brand " + id,
		ProductName:  "Product " + id,
		Price:        1999,
		Token:        tok.WithID("tok-" + id),
		RegisteredAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// SpatialDescriptor builds a descriptor whose histogram mass sits on the
// quadrant bins of spatial, a quarter per quadrant.
func SpatialDescriptor(spatial [feature.Quadrants]uint16) feature.Descriptor {
	hist := make([]float64, feature.HistogramLen(BinsPerChannel))
	for _, bin := range spatial {
		hist[bin] += 0.25
	}
	return feature.Descriptor{Bins: BinsPerChannel, Histogram: hist, Spatial: spatial}
}

// AssertSameProduct compares two products field by field.
func AssertSameProduct(t testing.TB, want, got store.ProductMatch) {
	t.Helper()
	assert.Equal(t, want.ProductID, got.ProductID)
	assert.Equal(t, want.BrandName, got.BrandName)
	assert.Equal(t, want.ProductName, got.ProductName)
	assert.Equal(t, want.Price, got.Price)
	assert.True(t, want.RegisteredAt.Equal(got.RegisteredAt), "registeredAt %v != %v", want.RegisteredAt, got.RegisteredAt)
	assert.Equal(t, want.Token.ID, got.Token.ID)
	assert.Equal(t, want.Token.Checksum, got.Token.Checksum)
	assert.True(t, want.Token.CreatedAt.Equal(got.Token.CreatedAt))
	assert.True(t, want.Token.Descriptor.Equal(got.Token.Descriptor), "descriptor changed")
}

// Run exercises the TokenStore contract against fresh stores from newStore.
func Run(t *testing.T, newStore func(t *testing.T) store.TokenStore) {
	ctx := context.Background()

	t.Run("Empty", func(t *testing.T) {
		s := newStore(t)
		all, err := s.ReadAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)

		_, err = s.ReadByID(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("WriteRead", func(t *testing.T) {
		s := newStore(t)
		rng := testutil.NewRNG(1)
		p := Product(t, rng, "p1")
		require.NoError(t, s.Write(ctx, p))

		got, err := s.ReadByID(ctx, "p1")
		require.NoError(t, err)
		AssertSameProduct(t, p, got)

		all, err := s.ReadAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		AssertSameProduct(t, p, all[0])
	})

	t.Run("Replace", func(t *testing.T) {
		s := newStore(t)
		rng := testutil.NewRNG(2)
		require.NoError(t, s.Write(ctx, Product(t, rng, "p1")))

		updated := Product(t, rng, "p1")
		updated.Price = 2499
		require.NoError(t, s.Write(ctx, updated))

		all, err := s.ReadAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		AssertSameProduct(t, updated, all[0])
	})

	t.Run("Conflict", func(t *testing.T) {
		s := newStore(t)
		rng := testutil.NewRNG(3)
		p := Product(t, rng, "p1")
		require.NoError(t, s.Write(ctx, p))

		// Writing the same product again is idempotent.
		require.NoError(t, s.Write(ctx, p))

		dup := ProductWithDescriptor(t, p.Token.Descriptor, "p2")
		assert.ErrorIs(t, s.Write(ctx, dup), store.ErrConflict)

		_, err := s.ReadByID(ctx, "p2")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("ReadByBucket", func(t *testing.T) {
		s := newStore(t)
		rng := testutil.NewRNG(4)

		byBucket := make(map[int][]string)
		for i := range 40 {
			p := Product(t, rng, fmt.Sprintf("p%02d", i))
			require.NoError(t, s.Write(ctx, p))
			for _, bucket := range p.Buckets() {
				byBucket[bucket] = append(byBucket[bucket], p.ProductID)
			}
		}

		for bucket := range feature.HistogramLen(BinsPerChannel) {
			got, err := store.ReadByBucket(ctx, s, bucket)
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, m := range got {
				assert.True(t, m.InBucket(bucket), "%s read for bucket %d", m.ProductID, bucket)
				ids = append(ids, m.ProductID)
			}
			assert.ElementsMatch(t, byBucket[bucket], ids, "bucket %d", bucket)
		}
	})

	t.Run("ReadByBucketFollowsReplace", func(t *testing.T) {
		s := newStore(t)
		before := ProductWithDescriptor(t, SpatialDescriptor([4]uint16{1, 1, 2, 3}), "p1")
		after := ProductWithDescriptor(t, SpatialDescriptor([4]uint16{3, 5, 5, 5}), "p1")

		require.NoError(t, s.Write(ctx, before))
		for _, bucket := range []int{1, 2, 3} {
			got, err := store.ReadByBucket(ctx, s, bucket)
			require.NoError(t, err)
			require.Len(t, got, 1, "bucket %d", bucket)
		}

		require.NoError(t, s.Write(ctx, after))
		tests := []struct {
			bucket int
			want   int
		}{
			{1, 0},
			{2, 0},
			{3, 1},
			{5, 1},
		}
		for _, tt := range tests {
			got, err := store.ReadByBucket(ctx, s, tt.bucket)
			require.NoError(t, err)
			assert.Len(t, got, tt.want, "bucket %d", tt.bucket)
		}
	})

	t.Run("ReturnsCopies", func(t *testing.T) {
		s := newStore(t)
		p := Product(t, testutil.NewRNG(5), "p1")
		require.NoError(t, s.Write(ctx, p))

		got, err := s.ReadByID(ctx, "p1")
		require.NoError(t, err)
		got.Token.Descriptor.Histogram[0] = 99

		again, err := s.ReadByID(ctx, "p1")
		require.NoError(t, err)
		AssertSameProduct(t, p, again)
	})

	t.Run("ConcurrentWrites", func(t *testing.T) {
		s := newStore(t)
		rng := testutil.NewRNG(6)

		products := make([]store.ProductMatch, 32)
		for i := range products {
			products[i] = Product(t, rng, fmt.Sprintf("c%02d", i))
		}

		var wg sync.WaitGroup
		errs := make(chan error, len(products))
		for _, p := range products {
			wg.Add(1)
			go func(p store.ProductMatch) {
				defer wg.Done()
				errs <- s.Write(ctx, p)
			}(p)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		all, err := s.ReadAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, len(products))
	})
}
