package vision

import (
	"fmt"
	"os"
	"time"

	"github.com/otic/vision/distance"
	"github.com/otic/vision/feature"
	"gopkg.in/yaml.v3"
)

// Config holds the recognition policy and tuning constants.
//
// Zero values are not defaults: start from DefaultConfig (or ParseConfig,
// which only overrides the keys present in the document).
type Config struct {
	// RegisterThreshold is the minimum best score of a Registered or
	// Ambiguous verdict.
	RegisterThreshold float64 `yaml:"register_threshold"`
	// AmbiguityMargin is the minimum lead of the best score over the
	// runner-up for a Registered verdict.
	AmbiguityMargin float64 `yaml:"ambiguity_margin"`
	// TrustCacheThreshold is the best shortlist score above which the
	// candidate index is trusted without a full scan.
	TrustCacheThreshold float64 `yaml:"trust_cache_threshold"`

	// Metric is the histogram comparison: "l1" (default) or "cosine".
	Metric string `yaml:"metric"`
	// BinsPerChannel is the per-channel histogram resolution.
	BinsPerChannel int `yaml:"bins_per_channel"`
	// AnalysisSize is the side of the square analysis image.
	AnalysisSize int `yaml:"analysis_size"`

	// IndexCapacity is the number of products the candidate index holds.
	// Zero disables the index; every recognition scans the store.
	IndexCapacity int `yaml:"index_capacity"`
	// IndexMemoryLimitBytes caps the index memory. Zero means unlimited.
	IndexMemoryLimitBytes int64 `yaml:"index_memory_limit_bytes"`
	// ShortlistSize is the maximum shortlist taken from the index, and the
	// number of full-scan results admitted into it.
	ShortlistSize int `yaml:"shortlist_size"`
	// AdmitThreshold is the minimum score of a full-scan result admitted
	// into the index.
	AdmitThreshold float64 `yaml:"admit_threshold"`
	// MaxCandidates bounds RecognitionResult.Candidates.
	MaxCandidates int `yaml:"max_candidates"`

	// ScanTimeout bounds every token store call.
	ScanTimeout time.Duration `yaml:"scan_timeout"`
	// MaxConcurrentScans bounds the full scans in flight.
	MaxConcurrentScans int `yaml:"max_concurrent_scans"`
	// ScanRateLimit limits full scans per second. Zero means unlimited.
	ScanRateLimit float64 `yaml:"scan_rate_limit"`
	// ParallelScoreThreshold is the scan size from which candidates are scored
	// in parallel. Zero disables parallel scoring.
	ParallelScoreThreshold int `yaml:"parallel_score_threshold"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		RegisterThreshold:      0.85,
		AmbiguityMargin:        0.05,
		TrustCacheThreshold:    0.95,
		Metric:                 distance.MetricL1.String(),
		BinsPerChannel:         feature.DefaultBinsPerChannel,
		AnalysisSize:           feature.DefaultAnalysisSize,
		IndexCapacity:          4096,
		ShortlistSize:          32,
		AdmitThreshold:         0.5,
		MaxCandidates:          5,
		ScanTimeout:            2 * time.Second,
		MaxConcurrentScans:     4,
		ParallelScoreThreshold: 2048,
	}
}

// LoadConfig reads a YAML config file. Keys absent from the file keep their
// default values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses a YAML document on top of DefaultConfig and validates
// the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	unit := func(name string, v float64) error {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s %v out of range [0,1]", ErrInvalidInput, name, v)
		}
		return nil
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"register_threshold", c.RegisterThreshold},
		{"ambiguity_margin", c.AmbiguityMargin},
		{"trust_cache_threshold", c.TrustCacheThreshold},
		{"admit_threshold", c.AdmitThreshold},
	} {
		if err := unit(f.name, f.v); err != nil {
			return err
		}
	}

	if c.TrustCacheThreshold < c.RegisterThreshold {
		return fmt.Errorf("%w: trust_cache_threshold %v below register_threshold %v",
			ErrInvalidInput, c.TrustCacheThreshold, c.RegisterThreshold)
	}
	if _, err := distance.ParseMetric(c.Metric); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if c.BinsPerChannel < feature.MinBinsPerChannel || c.BinsPerChannel > feature.MaxBinsPerChannel {
		return fmt.Errorf("%w: bins_per_channel %d out of range [%d,%d]",
			ErrInvalidInput, c.BinsPerChannel, feature.MinBinsPerChannel, feature.MaxBinsPerChannel)
	}
	if c.AnalysisSize < 2 {
		return fmt.Errorf("%w: analysis_size %d must be at least 2", ErrInvalidInput, c.AnalysisSize)
	}

	switch {
	case c.IndexCapacity < 0:
		return fmt.Errorf("%w: index_capacity %d is negative", ErrInvalidInput, c.IndexCapacity)
	case c.IndexMemoryLimitBytes < 0:
		return fmt.Errorf("%w: index_memory_limit_bytes %d is negative", ErrInvalidInput, c.IndexMemoryLimitBytes)
	case c.ShortlistSize < 1:
		return fmt.Errorf("%w: shortlist_size %d must be positive", ErrInvalidInput, c.ShortlistSize)
	case c.MaxCandidates < 1:
		return fmt.Errorf("%w: max_candidates %d must be positive", ErrInvalidInput, c.MaxCandidates)
	case c.ScanTimeout <= 0:
		return fmt.Errorf("%w: scan_timeout %v must be positive", ErrInvalidInput, c.ScanTimeout)
	case c.MaxConcurrentScans < 1:
		return fmt.Errorf("%w: max_concurrent_scans %d must be positive", ErrInvalidInput, c.MaxConcurrentScans)
	case c.ScanRateLimit < 0:
		return fmt.Errorf("%w: scan_rate_limit %v is negative", ErrInvalidInput, c.ScanRateLimit)
	case c.ParallelScoreThreshold < 0:
		return fmt.Errorf("%w: parallel_score_threshold %d is negative", ErrInvalidInput, c.ParallelScoreThreshold)
	}
	return nil
}
