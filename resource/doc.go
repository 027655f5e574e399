// Package resource governs the shared resources of the recognition engine.
//
//   - Memory: track and limit the bytes held by the candidate index (fail-fast)
//   - Scans: bound the number of concurrent full token-store scans
//   - Scan rate: token-bucket limit on full scans per second
//
// # Memory Management
//
//	rc := resource.NewController(resource.Config{MemoryLimitBytes: 64 << 20})
//	if err := rc.AcquireMemory(n); err != nil {
//	    // ErrMemoryLimitExceeded: do not cache
//	}
//	defer rc.ReleaseMemory(n)
//
// # Full Scans
//
//	release, err := rc.AcquireScan(ctx) // blocks until a slot and a rate token are free
//	if err != nil {
//	    return err
//	}
//	defer release()
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully; they become no-ops.
package resource
