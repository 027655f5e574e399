package vision

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus
// (see examples/observability).
type MetricsCollector interface {
	// RecordRecognize is called after each recognition call.
	// verdict and source are zero values when err is not nil.
	RecordRecognize(verdict Verdict, source Source, duration time.Duration, err error)

	// RecordRegister is called after each registration.
	RecordRegister(duration time.Duration, err error)

	// RecordCacheLookup is called after each candidate index lookup.
	// trusted reports whether the shortlist was used without a full scan.
	RecordCacheLookup(shortlist int, trusted bool)

	// RecordFullScan is called after each full token store scan.
	RecordFullScan(scanned int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordRecognize(Verdict, Source, time.Duration, error) {}
func (NoopMetricsCollector) RecordRegister(time.Duration, error)                   {}
func (NoopMetricsCollector) RecordCacheLookup(int, bool)                           {}
func (NoopMetricsCollector) RecordFullScan(int, time.Duration, error)              {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	RecognizeCount      atomic.Int64
	RecognizeErrors     atomic.Int64
	RecognizeTotalNanos atomic.Int64
	RegisteredCount     atomic.Int64
	AmbiguousCount      atomic.Int64
	UnregisteredCount   atomic.Int64
	RegisterCount       atomic.Int64
	RegisterErrors      atomic.Int64
	CacheLookups        atomic.Int64
	CacheHits           atomic.Int64
	CacheTrusted        atomic.Int64
	FullScanCount       atomic.Int64
	FullScanErrors      atomic.Int64
	FullScanRecords     atomic.Int64
	FullScanTotalNanos  atomic.Int64
}

// RecordRecognize implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRecognize(verdict Verdict, _ Source, duration time.Duration, err error) {
	b.RecognizeCount.Add(1)
	b.RecognizeTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.RecognizeErrors.Add(1)
		return
	}
	switch verdict {
	case Registered:
		b.RegisteredCount.Add(1)
	case Ambiguous:
		b.AmbiguousCount.Add(1)
	default:
		b.UnregisteredCount.Add(1)
	}
}

// RecordRegister implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRegister(_ time.Duration, err error) {
	b.RegisterCount.Add(1)
	if err != nil {
		b.RegisterErrors.Add(1)
	}
}

// RecordCacheLookup implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCacheLookup(shortlist int, trusted bool) {
	b.CacheLookups.Add(1)
	if shortlist > 0 {
		b.CacheHits.Add(1)
	}
	if trusted {
		b.CacheTrusted.Add(1)
	}
}

// RecordFullScan implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFullScan(scanned int, duration time.Duration, err error) {
	b.FullScanCount.Add(1)
	b.FullScanRecords.Add(int64(scanned))
	b.FullScanTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.FullScanErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		RecognizeCount:    b.RecognizeCount.Load(),
		RecognizeErrors:   b.RecognizeErrors.Load(),
		RecognizeAvgNanos: avg(b.RecognizeTotalNanos.Load(), b.RecognizeCount.Load()),
		RegisteredCount:   b.RegisteredCount.Load(),
		AmbiguousCount:    b.AmbiguousCount.Load(),
		UnregisteredCount: b.UnregisteredCount.Load(),
		RegisterCount:     b.RegisterCount.Load(),
		RegisterErrors:    b.RegisterErrors.Load(),
		CacheLookups:      b.CacheLookups.Load(),
		CacheHits:         b.CacheHits.Load(),
		CacheTrusted:      b.CacheTrusted.Load(),
		FullScanCount:     b.FullScanCount.Load(),
		FullScanErrors:    b.FullScanErrors.Load(),
		FullScanRecords:   b.FullScanRecords.Load(),
		FullScanAvgNanos:  avg(b.FullScanTotalNanos.Load(), b.FullScanCount.Load()),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	RecognizeCount    int64
	RecognizeErrors   int64
	RecognizeAvgNanos int64
	RegisteredCount   int64
	AmbiguousCount    int64
	UnregisteredCount int64
	RegisterCount     int64
	RegisterErrors    int64
	CacheLookups      int64
	CacheHits         int64
	CacheTrusted      int64
	FullScanCount     int64
	FullScanErrors    int64
	FullScanRecords   int64
	FullScanAvgNanos  int64
}
