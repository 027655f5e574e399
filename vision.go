package vision

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/otic/vision/distance"
	"github.com/otic/vision/feature"
	"github.com/otic/vision/internal/cache"
	"github.com/otic/vision/resource"
	"github.com/otic/vision/similarity"
	"github.com/otic/vision/store"
	"github.com/otic/vision/token"
)

// Orchestrator drives recognition and registration. It is safe for concurrent
// use; independent calls share nothing but the candidate index.
type Orchestrator struct {
	cfg       Config
	store     store.TokenStore
	extractor Extractor
	scorer    similarity.Scorer
	codec     *token.Codec
	index     *cache.CandidateIndex // nil when IndexCapacity is 0
	rc        *resource.Controller

	metrics  MetricsCollector
	logger   *Logger
	observer StateObserver
	now      func() time.Time
	newID    func() string

	closed atomic.Bool
}

// New creates an Orchestrator over st.
func New(cfg Config, st store.TokenStore, optFns ...Option) (*Orchestrator, error) {
	if st == nil {
		return nil, fmt.Errorf("%w: nil token store", ErrInvalidInput)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := applyOptions(optFns)

	if opts.extractor == nil {
		ext, err := feature.NewExtractor(func(o *feature.ExtractorOptions) {
			o.AnalysisSize = cfg.AnalysisSize
			o.BinsPerChannel = cfg.BinsPerChannel
		})
		if err != nil {
			return nil, err
		}
		opts.extractor = ext
	}

	if opts.scorer == nil {
		metric, err := distance.ParseMetric(cfg.Metric)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		m, err := similarity.New(metric)
		if err != nil {
			return nil, err
		}
		opts.scorer = m
	}

	if opts.codec == nil {
		c, err := token.NewCodec(cfg.BinsPerChannel, func(o *token.CodecOptions) { o.Now = opts.now })
		if err != nil {
			return nil, err
		}
		opts.codec = c
	} else if opts.codec.BinsPerChannel() != cfg.BinsPerChannel {
		return nil, fmt.Errorf("%w: codec has %d bins per channel, config %d",
			ErrInvalidInput, opts.codec.BinsPerChannel(), cfg.BinsPerChannel)
	}

	if opts.rc == nil {
		opts.rc = resource.NewController(resource.Config{
			MemoryLimitBytes:   cfg.IndexMemoryLimitBytes,
			MaxConcurrentScans: int64(cfg.MaxConcurrentScans),
			ScansPerSecond:     cfg.ScanRateLimit,
		})
	}

	o := &Orchestrator{
		cfg:       cfg,
		store:     st,
		extractor: opts.extractor,
		scorer:    opts.scorer,
		codec:     opts.codec,
		rc:        opts.rc,
		metrics:   opts.metricsCollector,
		logger:    opts.logger,
		observer:  opts.observer,
		now:       opts.now,
		newID:     opts.newID,
	}
	if cfg.IndexCapacity > 0 {
		o.index = cache.NewCandidateIndex(feature.HistogramLen(cfg.BinsPerChannel), cfg.IndexCapacity, opts.rc)
	}
	return o, nil
}

// Config returns the configuration the orchestrator was created with.
func (o *Orchestrator) Config() Config { return o.cfg }

// Recognize matches a frame against the registered products.
//
// Invalid frames fail with ErrInvalidInput; store failures with
// ErrStoreUnavailable, ErrTimeout or ErrCorruptToken, never with a verdict.
func (o *Orchestrator) Recognize(ctx context.Context, buf feature.PixelBuffer, optFns ...RecognizeOption) (*RecognitionResult, error) {
	start := time.Now()
	c := o.newCall()

	res, err := o.recognize(ctx, c, buf, applyRecognizeOptions(optFns))

	c.to(ctx, StateIdle)
	o.finish(ctx, res, start, err)
	if err != nil {
		return nil, newEngineError(OpRecognize, err)
	}
	return res, nil
}

func (o *Orchestrator) recognize(ctx context.Context, c *call, buf feature.PixelBuffer, opts recognizeOptions) (*RecognitionResult, error) {
	if err := o.checkOpen(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.to(ctx, StateCapturing)
	if err := buf.Validate(); err != nil {
		return nil, err
	}

	c.to(ctx, StateExtracting)
	tok, err := o.extract(buf)
	if err != nil {
		return nil, err
	}

	return o.match(ctx, c, tok, opts)
}

// RecognizeToken matches an already encoded token. The token must carry a
// valid descriptor with the configured bin count and its own checksum.
func (o *Orchestrator) RecognizeToken(ctx context.Context, t token.VisualToken, optFns ...RecognizeOption) (*RecognitionResult, error) {
	start := time.Now()
	c := o.newCall()

	res, err := o.recognizeToken(ctx, c, t, applyRecognizeOptions(optFns))

	c.to(ctx, StateIdle)
	o.finish(ctx, res, start, err)
	if err != nil {
		return nil, newEngineError(OpRecognize, err)
	}
	return res, nil
}

func (o *Orchestrator) recognizeToken(ctx context.Context, c *call, t token.VisualToken, opts recognizeOptions) (*RecognitionResult, error) {
	if err := o.checkOpen(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.to(ctx, StateCapturing)
	if err := o.validateToken(t); err != nil {
		return nil, err
	}
	return o.match(ctx, c, t, opts)
}

func (o *Orchestrator) validateToken(t token.VisualToken) error {
	if t.Descriptor.Bins != o.cfg.BinsPerChannel {
		return fmt.Errorf("%w: token has %d bins per channel, expected %d",
			ErrInvalidInput, t.Descriptor.Bins, o.cfg.BinsPerChannel)
	}
	if err := t.Descriptor.Validate(); err != nil {
		return err
	}
	if sum := token.Checksum(t.Descriptor); sum != t.Checksum {
		return fmt.Errorf("%w: checksum %08x, descriptor hashes to %08x", ErrCorruptToken, t.Checksum, sum)
	}
	return nil
}

// Extract turns a frame into a new, unregistered token.
func (o *Orchestrator) Extract(buf feature.PixelBuffer) (token.VisualToken, error) {
	if err := o.checkOpen(); err != nil {
		return token.VisualToken{}, newEngineError(OpExtract, err)
	}
	tok, err := o.extract(buf)
	if err != nil {
		return token.VisualToken{}, newEngineError(OpExtract, err)
	}
	return tok, nil
}

func (o *Orchestrator) extract(buf feature.PixelBuffer) (token.VisualToken, error) {
	d, err := o.extractor.Extract(buf)
	if err != nil {
		return token.VisualToken{}, err
	}
	return o.codec.Encode(d)
}

// match runs the Matching and Decided states.
func (o *Orchestrator) match(ctx context.Context, c *call, tok token.VisualToken, opts recognizeOptions) (*RecognitionResult, error) {
	c.to(ctx, StateMatching)

	var (
		candidates []Candidate
		source     = SourceFullScan
		trusted    bool
	)

	if o.index != nil && !opts.forceFullScan {
		shortlist, from, complete, err := o.shortlist(ctx, c, tok)
		if err != nil {
			return nil, err
		}
		ranked := o.rank(tok, shortlist)
		trusted = complete && o.trusted(ranked)
		o.metrics.RecordCacheLookup(len(shortlist), trusted)
		if trusted {
			candidates, source = ranked[:min(len(ranked), o.cfg.ShortlistSize)], from
		}
	}

	if !trusted {
		var err error
		candidates, err = o.fullScan(ctx, c, tok)
		if err != nil {
			return nil, err
		}
	}

	c.to(ctx, StateDecided)
	verdict, confidence := Decide(candidates, o.cfg)
	if len(candidates) > o.cfg.MaxCandidates {
		candidates = candidates[:o.cfg.MaxCandidates]
	}

	return &RecognitionResult{
		QueryToken: tok,
		Candidates: candidates,
		Verdict:    verdict,
		Confidence: confidence,
		Source:     source,
	}, nil
}

// shortlist returns every cached product sharing a bucket with tok. Incomplete
// buckets are first read through from stores implementing store.BucketReader.
// complete reports whether every bucket of tok held all of its registered
// products.
func (o *Orchestrator) shortlist(ctx context.Context, c *call, tok token.VisualToken) (matches []store.ProductMatch, from Source, complete bool, err error) {
	matches, incomplete := o.index.Lookup(tok)
	if len(incomplete) == 0 {
		return matches, SourceCache, true, nil
	}

	br, ok := o.store.(store.BucketReader)
	if !ok {
		return matches, SourceCache, false, nil
	}
	if err := o.readBuckets(ctx, c, br, incomplete); err != nil {
		return nil, SourceBucketRead, false, err
	}

	matches, incomplete = o.index.Lookup(tok)
	return matches, SourceBucketRead, len(incomplete) == 0, nil
}

// readBuckets fills the given buckets of the candidate index from the store.
func (o *Orchestrator) readBuckets(ctx context.Context, c *call, br store.BucketReader, bins []int) error {
	start := time.Now()

	readCtx, cancel := context.WithTimeout(ctx, o.cfg.ScanTimeout)
	defer cancel()

	epoch := o.index.Epoch()
	read, complete := 0, 0
	for _, bin := range bins {
		ms, err := storeCall(readCtx, func(ctx context.Context) ([]store.ProductMatch, error) {
			return br.ReadByBucket(ctx, bin)
		})
		if err != nil {
			c.logger.WithBucket(bin).LogBucketRead(ctx, len(bins), read, complete, time.Since(start), err)
			return err
		}
		read += len(ms)
		if o.index.Fill(bin, ms, epoch) {
			complete++
		}
	}

	c.logger.LogBucketRead(ctx, len(bins), read, complete, time.Since(start), nil)
	return nil
}

// trusted reports whether a shortlist drawn from complete buckets may stand in
// for a full scan: its best score reaches TrustCacheThreshold and clears the
// runner-up by AmbiguityMargin. A product outside those buckets shares no
// quadrant bin with the query and scores at most similarity.HistogramWeight,
// so the best score must clear that bound by AmbiguityMargin as well.
// candidates must be sorted.
func (o *Orchestrator) trusted(candidates []Candidate) bool {
	if len(candidates) == 0 {
		return false
	}
	best := candidates[0].Score
	if best < o.cfg.TrustCacheThreshold || best-o.cfg.AmbiguityMargin <= similarity.HistogramWeight {
		return false
	}
	return len(candidates) == 1 || best-candidates[1].Score >= o.cfg.AmbiguityMargin
}

// rank scores matches against tok sequentially and sorts them.
func (o *Orchestrator) rank(tok token.VisualToken, matches []store.ProductMatch) []Candidate {
	if len(matches) == 0 {
		return nil
	}
	out := make([]Candidate, len(matches))
	for i, m := range matches {
		out[i] = Candidate{Match: m, Score: o.scorer.Score(tok, m.Token)}
	}
	sortCandidates(out)
	return out
}

func (o *Orchestrator) finish(ctx context.Context, res *RecognitionResult, start time.Time, err error) {
	d := time.Since(start)
	if err != nil {
		o.metrics.RecordRecognize(Unregistered, SourceFullScan, d, err)
	} else {
		o.metrics.RecordRecognize(res.Verdict, res.Source, d, nil)
	}
	o.logger.LogRecognize(ctx, res, d, err)
}

func (o *Orchestrator) checkOpen() error {
	if o.closed.Load() {
		return ErrClosed
	}
	return nil
}

// IndexStats holds candidate index statistics.
type IndexStats struct {
	Entries int
	// Slots counts bucket slots; a product takes one per bucket it is filed in.
	Slots int
	// CompleteBuckets counts buckets known to hold all of their products.
	CompleteBuckets int
	Hits            int64
	Misses          int64
	Inserts         int64
	Evictions       int64
	Rejected        int64
	MemoryBytes     int64
}

// Stats is a snapshot of the orchestrator's runtime state.
type Stats struct {
	Index       IndexStats
	ActiveScans int64
	MemoryBytes int64
}

// Stats returns a snapshot of the index and resource usage.
func (o *Orchestrator) Stats() Stats {
	var s Stats
	if o.index != nil {
		is := o.index.Stats()
		s.Index = IndexStats{
			Entries:         is.Entries,
			Slots:           is.Slots,
			CompleteBuckets: is.CompleteBuckets,
			Hits:            is.Hits,
			Misses:          is.Misses,
			Inserts:         is.Inserts,
			Evictions:       is.Evictions,
			Rejected:        is.Rejected,
			MemoryBytes:     is.MemoryBytes,
		}
	}
	s.ActiveScans = o.rc.ActiveScans()
	s.MemoryBytes = o.rc.MemoryUsage()
	return s
}

// Close drops the candidate index. The token store is owned by the caller and
// left open. Close is idempotent.
func (o *Orchestrator) Close() error {
	if !o.closed.CompareAndSwap(false, true) {
		return nil
	}
	if o.index != nil {
		o.index.Reset()
	}
	return nil
}
