// Package similarity scores pairs of visual tokens.
//
// A score is a weighted sum of histogram similarity (weight HistogramWeight)
// and quadrant-signature agreement (weight SpatialWeight), bounded to [0, 1].
// The weights are fixed so scores are reproducible across deployments.
//
// Scores are symmetric, and a token always scores exactly 1 against itself.
package similarity

import (
	"github.com/otic/vision/distance"
	"github.com/otic/vision/token"
)

const (
	// HistogramWeight is the share of the score taken by histogram similarity.
	HistogramWeight = 0.8
	// SpatialWeight is the share of the score taken by quadrant agreement.
	SpatialWeight = 0.2
)

// Scorer computes a similarity in [0, 1] between two tokens.
// Implementations must be symmetric and safe for concurrent use.
type Scorer interface {
	Score(a, b token.VisualToken) float64
}

// Matcher is the default Scorer.
type Matcher struct {
	metric distance.Metric
	hist   distance.Func
}

// New returns a Matcher comparing histograms with the given metric.
func New(metric distance.Metric) (*Matcher, error) {
	fn, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}
	return &Matcher{metric: metric, hist: fn}, nil
}

// Default returns an L1 Matcher.
func Default() *Matcher {
	m, _ := New(distance.MetricL1)
	return m
}

// Metric returns the histogram metric in use.
func (m *Matcher) Metric() distance.Metric { return m.metric }

// Score implements Scorer.
func (m *Matcher) Score(a, b token.VisualToken) float64 {
	da, db := a.Descriptor, b.Descriptor
	if da.Bins != db.Bins || len(da.Histogram) != len(db.Histogram) {
		return 0
	}

	if a.Checksum == b.Checksum {
		if da.Equal(db) {
			return 1
		}
		if !da.QuantizedEqual(db) {
			// Equal checksums over different content: a collision, never a match.
			return 0
		}
	}

	hist := clamp01(m.hist(da.Histogram, db.Histogram))
	spatial := distance.Agreement(da.Spatial[:], db.Spatial[:])
	return clamp01(HistogramWeight*hist + SpatialWeight*spatial)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
