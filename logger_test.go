package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/otic/vision/store"
	"github.com/otic/vision/store/memstore"
	"github.com/otic/vision/store/storetest"
	"github.com/otic/vision/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logEntries(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var e map[string]any
		require.NoError(t, json.Unmarshal(line, &e))
		out = append(out, e)
	}
	return out
}

func byMessage(entries []map[string]any, msg string) []map[string]any {
	var out []map[string]any
	for _, e := range entries {
		if e["msg"] == msg {
			out = append(out, e)
		}
	}
	return out
}

func TestLogger_Events(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	o := newOrchestrator(t, DefaultConfig(), memstore.New(), WithLogger(logger))
	ctx := context.Background()

	register(t, o, testutil.Solid(frameSize, frameSize, testutil.Red), "red")
	_, err := o.Recognize(ctx, testutil.Solid(frameSize, frameSize, testutil.Red), WithForceFullScan())
	require.NoError(t, err)

	entries := logEntries(t, &buf)

	registered := byMessage(entries, "product registered")
	require.Len(t, registered, 1)
	assert.Equal(t, "red", registered[0]["product_id"])

	scans := byMessage(entries, "full scan completed")
	require.Len(t, scans, 1)
	assert.EqualValues(t, 1, scans[0]["scanned"])

	done := byMessage(entries, "recognize completed")
	require.Len(t, done, 1)
	assert.Equal(t, Registered.String(), done[0]["verdict"])
	assert.Equal(t, SourceFullScan.String(), done[0]["source"])
	assert.Equal(t, "red", done[0]["product_id"])

	states := byMessage(entries, "state")
	require.Len(t, states, 5)
	for _, e := range states {
		assert.Equal(t, states[0]["call"], e["call"])
	}
	assert.Equal(t, StateIdle.String(), states[0]["from"])
	assert.Equal(t, StateIdle.String(), states[len(states)-1]["to"])
}

func TestLogger_BucketRead(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	fs := storetest.NewFaultyStore(memstore.New())
	o := newOrchestrator(t, DefaultConfig(), fs, WithLogger(logger))
	ctx := context.Background()

	red := register(t, o, testutil.Solid(frameSize, frameSize, testutil.Red), "red")
	_, err := o.Recognize(ctx, testutil.Solid(frameSize, frameSize, testutil.Red))
	require.NoError(t, err)

	reads := byMessage(logEntries(t, &buf), "bucket read completed")
	require.Len(t, reads, 1)
	assert.EqualValues(t, len(red.Buckets()), reads[0]["buckets"])
	assert.EqualValues(t, 1, reads[0]["read"])
	assert.EqualValues(t, len(red.Buckets()), reads[0]["complete"])

	buf.Reset()
	fs.AddRule(storetest.OpReadByBucket, storetest.Fault{Err: store.ErrUnavailable})
	blue := descriptorOf(t, o, testutil.Solid(frameSize, frameSize, testutil.Blue))
	_, err = o.Recognize(ctx, testutil.Solid(frameSize, frameSize, testutil.Blue))
	require.ErrorIs(t, err, ErrStoreUnavailable)

	failed := byMessage(logEntries(t, &buf), "bucket read failed")
	require.Len(t, failed, 1)
	assert.Equal(t, "WARN", failed[0]["level"])
	assert.EqualValues(t, blue.Bucket(), failed[0]["bucket"])
}

func TestLogger_Failure(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	o := newOrchestrator(t, DefaultConfig(), memstore.New(), WithLogger(logger))
	require.NoError(t, o.Close())

	_, err := o.Recognize(context.Background(), testutil.Solid(frameSize, frameSize, testutil.Red))
	require.ErrorIs(t, err, ErrClosed)

	failed := byMessage(logEntries(t, &buf), "recognize failed")
	require.Len(t, failed, 1)
	assert.Equal(t, KindClosed.String(), failed[0]["kind"])
	assert.Equal(t, "ERROR", failed[0]["level"])
}

func TestNoopLogger(t *testing.T) {
	l := NoopLogger()
	assert.False(t, l.Enabled(context.Background(), slog.LevelError))
	l.WithCall(1).WithProduct("p").WithBucket(3).LogState(context.Background(), StateIdle, StateCapturing)
}
