package distance

import (
	"fmt"
	"math"
)

// L1 calculates the Manhattan distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
// The sum runs in index order, so L1(a, b) == L1(b, a) bit for bit.
func L1(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += math.Abs(a[i] - b[i])
	}
	return sum
}

// Dot calculates the dot product of two vectors.
func Dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Cosine calculates the cosine similarity of two vectors.
// Returns 0 if either vector has zero norm.
func Cosine(a, b []float64) float64 {
	na, nb := Dot(a, a), Dot(b, b)
	if na == 0 || nb == 0 {
		return 0
	}
	return Dot(a, b) / (math.Sqrt(na) * math.Sqrt(nb))
}

// Agreement returns the fraction of positions at which both signatures hold
// the same value. Empty or mismatched signatures agree nowhere.
func Agreement(a, b []uint16) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	same := 0
	for i := range a {
		if a[i] == b[i] {
			same++
		}
	}
	return float64(same) / float64(len(a))
}

// Metric selects the histogram comparison used for scoring.
type Metric int

const (
	MetricL1 Metric = iota
	MetricCosine
)

func (m Metric) String() string {
	switch m {
	case MetricL1:
		return "L1"
	case MetricCosine:
		return "Cosine"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// ParseMetric returns the metric with the given name.
func ParseMetric(name string) (Metric, error) {
	switch name {
	case "", "l1", "L1":
		return MetricL1, nil
	case "cosine", "Cosine":
		return MetricCosine, nil
	default:
		return 0, fmt.Errorf("unsupported metric %q", name)
	}
}

// Func maps two normalized histograms onto a similarity in [0, 1].
type Func func(a, b []float64) float64

// L1Similarity is 1 - L1/2, the complement of the normalized L1 distance.
func L1Similarity(a, b []float64) float64 {
	return 1 - L1(a, b)/2
}

// Provider returns the similarity function for the given metric.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricL1:
		return L1Similarity, nil
	case MetricCosine:
		return Cosine, nil
	default:
		return nil, fmt.Errorf("unsupported metric: %v", m)
	}
}
