// Package cache provides the in-memory candidate index of the recognition
// engine.
//
// # Candidate Index
//
// The CandidateIndex keeps recently matched or registered products keyed by
// the locality bucket of their token (the dominant bin of the spatial
// signature). It has one shard per histogram bin, so lookups for unrelated
// products never contend.
//
// Key features:
//   - Per-bucket RWMutex: lookups take read locks only
//   - Fixed-capacity slot table per bucket with LRU eviction driven by a
//     global atomic access clock
//   - Multi-probe lookup over every distinct bin of the query's signature
//   - Integrated with the resource Controller for memory limits
//
// The index is a pure accelerator. It never holds a product that was not read
// from, or successfully written to, the token store.
package cache
