// Package distance provides the histogram and signature distance kernels used
// to compare visual tokens.
//
// # Supported Metrics
//
//   - MetricL1: Manhattan distance between normalized histograms (default)
//   - MetricCosine: cosine similarity between histograms
//
// # Usage
//
//	d := distance.L1(a, b)         // in [0, 2] for normalized histograms
//	s := distance.Cosine(a, b)     // in [0, 1] for non-negative histograms
//	f := distance.Agreement(p, q)  // fraction of equal signature entries
package distance
