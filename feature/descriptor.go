package feature

import (
	"fmt"
	"math"
	"slices"
)

const (
	// Quadrants is the number of entries in the spatial signature.
	Quadrants = 4

	// MinBinsPerChannel and MaxBinsPerChannel bound the histogram resolution.
	MinBinsPerChannel = 2
	MaxBinsPerChannel = 16

	// SumTolerance is the accepted deviation of the histogram mass from 1.
	SumTolerance = 1e-9

	quantScale = math.MaxUint16
)

// Descriptor is the fixed-size color/spatial feature vector of a frame.
type Descriptor struct {
	// Bins is the number of bins per RGB channel; the histogram has Bins³ entries.
	Bins int

	// Histogram holds the normalized color distribution.
	Histogram []float64

	// Spatial holds the dominant histogram bin of each quadrant
	// (top-left, top-right, bottom-left, bottom-right).
	Spatial [Quadrants]uint16
}

// HistogramLen returns the histogram length for the given bin count.
func HistogramLen(binsPerChannel int) int {
	return binsPerChannel * binsPerChannel * binsPerChannel
}

// Validate checks the descriptor invariants.
func (d Descriptor) Validate() error {
	if d.Bins < MinBinsPerChannel || d.Bins > MaxBinsPerChannel {
		return fmt.Errorf("%w: bins per channel %d out of range [%d,%d]",
			ErrInvalidInput, d.Bins, MinBinsPerChannel, MaxBinsPerChannel)
	}
	n := HistogramLen(d.Bins)
	if len(d.Histogram) != n {
		return fmt.Errorf("%w: histogram has %d bins, expected %d", ErrInvalidInput, len(d.Histogram), n)
	}

	var sum float64
	for i, v := range d.Histogram {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: histogram bin %d has invalid mass %v", ErrInvalidInput, i, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > SumTolerance {
		return fmt.Errorf("%w: histogram mass %v is not normalized", ErrInvalidInput, sum)
	}

	for q, bin := range d.Spatial {
		if int(bin) >= n {
			return fmt.Errorf("%w: quadrant %d references bin %d of %d", ErrInvalidInput, q, bin, n)
		}
	}
	return nil
}

// Equal reports whether both descriptors are bit-identical.
func (d Descriptor) Equal(other Descriptor) bool {
	if d.Bins != other.Bins || d.Spatial != other.Spatial || len(d.Histogram) != len(other.Histogram) {
		return false
	}
	for i, v := range d.Histogram {
		if math.Float64bits(v) != math.Float64bits(other.Histogram[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (d Descriptor) Clone() Descriptor {
	d.Histogram = slices.Clone(d.Histogram)
	return d
}

// Quantize maps every histogram bin onto a uint16, which is stable across
// serialization round-trips and independent of float formatting.
func (d Descriptor) Quantize() []uint16 {
	q := make([]uint16, len(d.Histogram))
	for i, v := range d.Histogram {
		q[i] = quantize(v)
	}
	return q
}

// QuantizedEqual reports whether both descriptors quantize identically.
func (d Descriptor) QuantizedEqual(other Descriptor) bool {
	if d.Bins != other.Bins || d.Spatial != other.Spatial || len(d.Histogram) != len(other.Histogram) {
		return false
	}
	for i, v := range d.Histogram {
		if quantize(v) != quantize(other.Histogram[i]) {
			return false
		}
	}
	return true
}

// Bucket returns the coarse locality key of the descriptor: the most frequent
// bin of the spatial signature, ties resolved to the lowest bin index.
func (d Descriptor) Bucket() int {
	best, bestCount := int(d.Spatial[0]), 0
	for _, candidate := range d.Spatial {
		count := 0
		for _, other := range d.Spatial {
			if other == candidate {
				count++
			}
		}
		if count > bestCount || (count == bestCount && int(candidate) < best) {
			best, bestCount = int(candidate), count
		}
	}
	return best
}

// Probes returns the distinct spatial bins, the primary bucket first. A
// descriptor is filed under, and looked up in, every one of them.
func (d Descriptor) Probes() []int {
	primary := d.Bucket()
	probes := make([]int, 1, Quadrants)
	probes[0] = primary
	for _, bin := range d.Spatial {
		if !slices.Contains(probes, int(bin)) {
			probes = append(probes, int(bin))
		}
	}
	return probes
}

// InBucket reports whether bin is one of the spatial bins of the descriptor.
func (d Descriptor) InBucket(bin int) bool {
	for _, b := range d.Spatial {
		if int(b) == bin {
			return true
		}
	}
	return false
}

func quantize(v float64) uint16 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return quantScale
	}
	return uint16(math.Round(v * quantScale))
}
