// Package vision recognizes physical products from camera frames without a
// barcode.
//
// A frame is reduced to a compact color fingerprint (a visual token) and
// matched against the tokens of registered products. The Orchestrator drives
// the pipeline:
//
//	frame → extract → encode → candidate index shortlist
//	      → (full token store scan when the shortlist cannot be trusted)
//	      → score → decide
//
// # Quick Start
//
//	ctx := context.Background()
//	st := memstore.New()
//	o, _ := vision.New(vision.DefaultConfig(), st)
//	defer o.Close()
//
//	// Register a product from a reference frame.
//	tok, _ := o.Extract(frame)
//	p, _ := o.RegisterToken(ctx, tok.Descriptor, vision.ProductMetadata{
//	    BrandName:   "Acme",
//	    ProductName: "Tomato Soup",
//	    Price:       249,
//	})
//
//	// Recognize it at the point of sale.
//	res, err := o.Recognize(ctx, capture)
//	switch {
//	case err != nil:
//	    // ErrInvalidInput, ErrStoreUnavailable, ErrTimeout, ...
//	case res.Verdict == vision.Registered:
//	    fmt.Println(res.Candidates[0].Match.ProductName)
//	}
//
// # Verdicts
//
// The verdict policy is ordered, first match wins:
//
//  1. No candidates at all: Unregistered, confidence 0.
//  2. Best score ≥ RegisterThreshold and at least AmbiguityMargin above the
//     runner-up: Registered.
//  3. Best score ≥ RegisterThreshold but the margin fails: Ambiguous.
//  4. Otherwise: Unregistered with the best score as confidence.
//
// Infrastructure failures are errors, never low-confidence verdicts: an
// unreachable store yields ErrStoreUnavailable and a slow one ErrTimeout.
//
// # Candidate Index
//
// Recently matched and registered products are kept in a bounded, bucketed
// LRU index. The shortlist it supplies is only trusted when its best score
// reaches TrustCacheThreshold with a clear margin; otherwise the token store
// is scanned in full. Use WithForceFullScan to bypass the index per call.
//
// # Key Features
//
//   - Deterministic color histogram + quadrant signature descriptors
//   - Checksummed binary tokens (CRC32C over the quantized histogram)
//   - Token stores on memory (Roaring bitmaps), SQLite and blob storage
//     (local disk, S3, MinIO) with DynamoDB conflict detection
//   - Bounded, rate-limited full scans with parallel scoring
//   - Structured logging (log/slog) and pluggable metrics
package vision
