package vision

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/otic/vision/feature"
	"github.com/otic/vision/resource"
	"github.com/otic/vision/similarity"
	"github.com/otic/vision/token"
)

// Extractor turns a frame into a descriptor. *feature.Extractor is the
// default implementation.
type Extractor interface {
	Extract(buf feature.PixelBuffer) (feature.Descriptor, error)
}

type options struct {
	extractor        Extractor
	scorer           similarity.Scorer
	codec            *token.Codec
	metricsCollector MetricsCollector
	logger           *Logger
	rc               *resource.Controller
	observer         StateObserver
	now              func() time.Time
	newID            func() string
}

// Option configures the Orchestrator.
type Option func(*options)

// WithExtractor replaces the feature extractor. It must produce descriptors
// with Config.BinsPerChannel bins per channel.
func WithExtractor(e Extractor) Option {
	return func(o *options) {
		o.extractor = e
	}
}

// WithScorer replaces the similarity scorer.
func WithScorer(s similarity.Scorer) Option {
	return func(o *options) {
		o.scorer = s
	}
}

// WithCodec replaces the token codec. Its bin count must match
// Config.BinsPerChannel.
func WithCodec(c *token.Codec) Option {
	return func(o *options) {
		o.codec = c
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &vision.BasicMetricsCollector{}
//	o, _ := vision.New(cfg, st, vision.WithMetricsCollector(metrics))
//	// ... use o ...
//	stats := metrics.GetStats()
//	fmt.Printf("Recognitions: %d, full scans: %d\n", stats.RecognizeCount, stats.FullScanCount)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := vision.NewJSONLogger(slog.LevelInfo)
//	o, _ := vision.New(cfg, st, vision.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithResourceController shares a resource controller between orchestrators,
// so scan concurrency and index memory are bounded across all of them.
// By default each orchestrator creates its own from the Config.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}

// WithStateObserver installs a callback for state machine transitions.
func WithStateObserver(fn StateObserver) Option {
	return func(o *options) {
		o.observer = fn
	}
}

// WithClock replaces time.Now for token and registration timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithIDGenerator replaces the random UUID generator used for product and
// token IDs.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		o.newID = fn
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		now:              time.Now,
		newID:            uuid.NewString,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.newID == nil {
		o.newID = uuid.NewString
	}
	return o
}

type recognizeOptions struct {
	forceFullScan bool
}

// RecognizeOption configures a single recognition call.
type RecognizeOption func(*recognizeOptions)

// WithForceFullScan bypasses the candidate index and scans the token store.
func WithForceFullScan() RecognizeOption {
	return func(o *recognizeOptions) {
		o.forceFullScan = true
	}
}

func applyRecognizeOptions(optFns []RecognizeOption) recognizeOptions {
	var o recognizeOptions
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
