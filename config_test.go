package vision

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.85, cfg.RegisterThreshold)
	assert.Equal(t, 0.05, cfg.AmbiguityMargin)
	assert.Equal(t, 4, cfg.BinsPerChannel)
	assert.Equal(t, 64, cfg.AnalysisSize)
	assert.Equal(t, 2*time.Second, cfg.ScanTimeout)
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
register_threshold: 0.9
ambiguity_margin: 0
metric: cosine
bins_per_channel: 8
scan_timeout: 750ms
index_capacity: 0
`))
	require.NoError(t, err)

	assert.Equal(t, 0.9, cfg.RegisterThreshold)
	assert.Zero(t, cfg.AmbiguityMargin)
	assert.Equal(t, "cosine", cfg.Metric)
	assert.Equal(t, 8, cfg.BinsPerChannel)
	assert.Equal(t, 750*time.Millisecond, cfg.ScanTimeout)
	assert.Zero(t, cfg.IndexCapacity)

	// Absent keys keep their defaults.
	def := DefaultConfig()
	assert.Equal(t, def.TrustCacheThreshold, cfg.TrustCacheThreshold)
	assert.Equal(t, def.ShortlistSize, cfg.ShortlistSize)
	assert.Equal(t, def.MaxConcurrentScans, cfg.MaxConcurrentScans)
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"Syntax", "register_threshold: [1"},
		{"Threshold", "register_threshold: 1.2"},
		{"TrustBelowRegister", "trust_cache_threshold: 0.5"},
		{"Metric", "metric: hamming"},
		{"Bins", "bins_per_channel: 1"},
		{"AnalysisSize", "analysis_size: 1"},
		{"Shortlist", "shortlist_size: 0"},
		{"Candidates", "max_candidates: 0"},
		{"Timeout", "scan_timeout: 0s"},
		{"Scans", "max_concurrent_scans: 0"},
		{"Rate", "scan_rate_limit: -1"},
		{"Parallel", "parallel_score_threshold: -1"},
		{"Capacity", "index_capacity: -1"},
		{"Memory", "index_memory_limit_bytes: -1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vision.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_candidates: 3\nscan_rate_limit: 2.5\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxCandidates)
	assert.Equal(t, 2.5, cfg.ScanRateLimit)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
