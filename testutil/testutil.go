package testutil

import (
	"math/rand"
	"sync"

	"github.com/otic/vision/feature"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// RandomDescriptor returns a valid, sparse descriptor: a handful of occupied
// bins with random mass, the spatial signature drawn from the occupied bins.
func RandomDescriptor(r *RNG, binsPerChannel int) feature.Descriptor {
	n := feature.HistogramLen(binsPerChannel)
	hist := make([]float64, n)

	occupied := make([]int, 0, 8)
	for len(occupied) < 6 {
		bin := r.Intn(n)
		if hist[bin] == 0 {
			hist[bin] = 0.05 + r.Float64()
			occupied = append(occupied, bin)
		}
	}

	var sum float64
	for _, v := range hist {
		sum += v
	}
	for i := range hist {
		hist[i] /= sum
	}

	d := feature.Descriptor{Bins: binsPerChannel, Histogram: hist}
	for q := range d.Spatial {
		d.Spatial[q] = uint16(occupied[r.Intn(len(occupied))])
	}
	return d
}
