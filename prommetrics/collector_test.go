package prommetrics

import (
	"context"
	"errors"
	"testing"
	"time"

	vision "github.com/otic/vision"
	"github.com/otic/vision/store/memstore"
	"github.com/otic/vision/testutil"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg, "vision")
	require.NoError(t, err)

	_, err = New(reg, "vision")
	assert.Error(t, err)
}

func TestCollector_Direct(t *testing.T) {
	c, err := New(prometheus.NewRegistry(), "vision")
	require.NoError(t, err)

	c.RecordCacheLookup(0, false)
	c.RecordCacheLookup(3, false)
	c.RecordCacheLookup(1, true)
	c.RecordCacheLookup(2, true)

	assert.Equal(t, 1.0, promtest.ToFloat64(c.lookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.lookups.WithLabelValues("untrusted")))
	assert.Equal(t, 2.0, promtest.ToFloat64(c.lookups.WithLabelValues("trusted")))

	c.RecordRecognize(vision.Registered, vision.SourceCache, time.Millisecond, nil)
	c.RecordRecognize(0, 0, time.Millisecond, vision.ErrStoreUnavailable)
	c.RecordRegister(time.Millisecond, nil)
	c.RecordFullScan(10, time.Millisecond, nil)
	c.RecordFullScan(0, time.Millisecond, errors.New("down"))

	assert.Equal(t, 2, promtest.CollectAndCount(c.recognize))
	assert.Equal(t, 1, promtest.CollectAndCount(c.register))
	assert.Equal(t, 2, promtest.CollectAndCount(c.fullScans))
}

func TestCollector_WithOrchestrator(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg, "vision")
	require.NoError(t, err)

	o, err := vision.New(vision.DefaultConfig(), memstore.New(), vision.WithMetricsCollector(c))
	require.NoError(t, err)
	defer o.Close()

	ctx := context.Background()
	red, err := o.Extract(testutil.Solid(128, 128, testutil.Red))
	require.NoError(t, err)
	_, err = o.RegisterToken(ctx, red.Descriptor, vision.ProductMetadata{
		ProductID: "sku-1", BrandName: "Acme", ProductName: "Tomato Soup", Price: 249,
	})
	require.NoError(t, err)

	res, err := o.Recognize(ctx, testutil.Solid(96, 96, testutil.Red))
	require.NoError(t, err)
	assert.Equal(t, vision.Registered, res.Verdict)
	assert.Equal(t, vision.SourceBucketRead, res.Source)

	res, err = o.Recognize(ctx, testutil.Solid(96, 96, testutil.Blue))
	require.NoError(t, err)
	assert.Equal(t, vision.Unregistered, res.Verdict)

	assert.Equal(t, 1.0, promtest.ToFloat64(c.lookups.WithLabelValues("trusted")))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.lookups.WithLabelValues("miss")))
	assert.Equal(t, 1, promtest.CollectAndCount(c.register))

	count, err := promtest.GatherAndCount(reg, "vision_recognize_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
