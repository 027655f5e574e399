// Package prommetrics exports recognition metrics to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	mc, err := prommetrics.New(reg, "vision")
//	o, err := vision.New(cfg, st, vision.WithMetricsCollector(mc))
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
package prommetrics

import (
	"time"

	vision "github.com/otic/vision"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements vision.MetricsCollector.
type Collector struct {
	recognize   *prometheus.HistogramVec
	register    *prometheus.HistogramVec
	lookups     *prometheus.CounterVec
	shortlist   prometheus.Histogram
	fullScans   *prometheus.HistogramVec
	scanRecords prometheus.Histogram
}

var _ vision.MetricsCollector = (*Collector)(nil)

// New creates a Collector and registers its metrics with reg.
func New(reg prometheus.Registerer, namespace string) (*Collector, error) {
	c := &Collector{
		recognize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recognize_duration_seconds",
			Help:      "Latency of recognition calls by verdict and candidate source.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"verdict", "source", "status"}),
		register: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "register_duration_seconds",
			Help:      "Latency of product registrations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidate_index_lookups_total",
			Help:      "Candidate index lookups by outcome (miss, untrusted, trusted).",
		}, []string{"result"}),
		shortlist: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidate_index_shortlist_size",
			Help:      "Number of cached candidates returned per lookup.",
			Buckets:   prometheus.LinearBuckets(0, 8, 9),
		}),
		fullScans: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "full_scan_duration_seconds",
			Help:      "Latency of full token store scans.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		scanRecords: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "full_scan_records",
			Help:      "Products scored per full scan.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
	}

	for _, col := range []prometheus.Collector{c.recognize, c.register, c.lookups, c.shortlist, c.fullScans, c.scanRecords} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordRecognize implements vision.MetricsCollector.
func (c *Collector) RecordRecognize(verdict vision.Verdict, source vision.Source, d time.Duration, err error) {
	v, s := verdict.String(), source.String()
	if err != nil {
		v = vision.KindOf(err).String()
		s = "none"
	}
	c.recognize.WithLabelValues(v, s, status(err)).Observe(d.Seconds())
}

// RecordRegister implements vision.MetricsCollector.
func (c *Collector) RecordRegister(d time.Duration, err error) {
	c.register.WithLabelValues(status(err)).Observe(d.Seconds())
}

// RecordCacheLookup implements vision.MetricsCollector.
func (c *Collector) RecordCacheLookup(shortlist int, trusted bool) {
	result := "untrusted"
	switch {
	case trusted:
		result = "trusted"
	case shortlist == 0:
		result = "miss"
	}
	c.lookups.WithLabelValues(result).Inc()
	c.shortlist.Observe(float64(shortlist))
}

// RecordFullScan implements vision.MetricsCollector.
func (c *Collector) RecordFullScan(scanned int, d time.Duration, err error) {
	c.fullScans.WithLabelValues(status(err)).Observe(d.Seconds())
	if err == nil {
		c.scanRecords.Observe(float64(scanned))
	}
}
