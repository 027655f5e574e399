package distance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestL1(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float64
		expected float64
	}{
		{"Simple", []float64{1, 2, 3}, []float64{4, 5, 6}, 9},
		{"Zero", []float64{0, 0, 0}, []float64{0, 0, 0}, 0},
		{"Identical", []float64{0.25, 0.75}, []float64{0.25, 0.75}, 0},
		{"Disjoint", []float64{1, 0}, []float64{0, 1}, 2},
		{"Empty", []float64{}, []float64{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, L1(tt.a, tt.b), 1e-12)
			assert.Equal(t, L1(tt.a, tt.b), L1(tt.b, tt.a))
		})
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float64
		expected float64
	}{
		{"Parallel", []float64{1, 2}, []float64{2, 4}, 1},
		{"Orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"ZeroNorm", []float64{0, 0}, []float64{1, 1}, 0},
		{"Partial", []float64{1, 1}, []float64{1, 0}, 0.7071067811865475},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Cosine(tt.a, tt.b), 1e-12)
		})
	}
}

func TestAgreement(t *testing.T) {
	assert.Equal(t, 1.0, Agreement([]uint16{1, 2, 3, 4}, []uint16{1, 2, 3, 4}))
	assert.Equal(t, 0.5, Agreement([]uint16{1, 2, 3, 4}, []uint16{1, 9, 3, 9}))
	assert.Equal(t, 0.0, Agreement([]uint16{1, 2}, []uint16{1, 2, 3}))
	assert.Equal(t, 0.0, Agreement(nil, nil))
}

func TestProvider(t *testing.T) {
	fn, err := Provider(MetricL1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, fn([]float64{0.5, 0.5}, []float64{0.5, 0.5}))
	assert.InDelta(t, 0.0, fn([]float64{1, 0}, []float64{0, 1}), 1e-12)

	fn, err = Provider(MetricCosine)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, fn([]float64{0.5, 0.5}, []float64{0.5, 0.5}), 1e-12)

	_, err = Provider(Metric(99))
	assert.Error(t, err)
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("cosine")
	require.NoError(t, err)
	assert.Equal(t, MetricCosine, m)
	assert.Equal(t, "Cosine", m.String())

	m, err = ParseMetric("")
	require.NoError(t, err)
	assert.Equal(t, MetricL1, m)

	_, err = ParseMetric("hamming")
	assert.Error(t, err)
}
