package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/otic/vision/store"
	"github.com/otic/vision/store/memstore"
	"github.com/otic/vision/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFaultyStore_PassThrough(t *testing.T) {
	Run(t, func(t *testing.T) store.TokenStore {
		return NewFaultyStore(memstore.New())
	})
}

func TestFaultyStore_Rules(t *testing.T) {
	ctx := context.Background()
	f := NewFaultyStore(memstore.New())
	p := Product(t, testutil.NewRNG(1), "p1")
	require.NoError(t, f.Write(ctx, p))

	boom := errors.New("boom")
	f.AddRule(OpReadAll, Fault{Err: boom})
	_, err := f.ReadAll(ctx)
	assert.ErrorIs(t, err, boom)

	// Other operations are unaffected.
	_, err = f.ReadByID(ctx, "p1")
	require.NoError(t, err)

	f.ClearRules()
	all, err := f.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	assert.Equal(t, int64(2), f.CallCount(OpReadAll))
	assert.Equal(t, int64(1), f.CallCount(OpReadByID))
	assert.Equal(t, int64(1), f.CallCount(OpWrite))
}

func TestFaultyStore_Unavailable(t *testing.T) {
	ctx := context.Background()
	f := NewFaultyStore(memstore.New())
	f.SetUnavailable(true)

	_, err := f.ReadAll(ctx)
	assert.ErrorIs(t, err, store.ErrUnavailable)
	_, err = f.ReadByBucket(ctx, 0)
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.ErrorIs(t, f.Write(ctx, Product(t, testutil.NewRNG(2), "p1")), store.ErrUnavailable)

	f.SetUnavailable(false)
	_, err = f.ReadAll(ctx)
	require.NoError(t, err)
}

func TestFaultyStore_Delay(t *testing.T) {
	f := NewFaultyStore(memstore.New())
	f.AddRule(OpReadAll, Fault{Delay: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := f.ReadAll(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	f.AddRule(OpReadByID, Fault{Delay: 30 * time.Millisecond, IgnoreContext: true})
	canceled, cancel2 := context.WithCancel(context.Background())
	cancel2()
	start = time.Now()
	_, _ = f.ReadByID(canceled, "p1")
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}
