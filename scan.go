package vision

import (
	"context"
	"runtime"
	"time"

	"github.com/otic/vision/store"
	"github.com/otic/vision/token"
	"golang.org/x/sync/errgroup"
)

// scoreChunkSize is the number of products scored per goroutine.
const scoreChunkSize = 512

// storeCall runs fn on its own goroutine and abandons it, rather than
// waiting, once ctx is done, so a store that ignores its context cannot hang
// the caller. Errors are translated onto the public taxonomy.
func storeCall[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	var zero T
	select {
	case r := <-ch:
		if r.err != nil {
			return zero, translateError(ctx, r.err)
		}
		return r.v, nil
	case <-ctx.Done():
		return zero, translateError(ctx, ctx.Err())
	}
}

// fullScan reads every registered product, scores it against tok, fills the
// buckets of tok and admits the strongest results into the candidate index.
// The returned candidates are sorted.
func (o *Orchestrator) fullScan(ctx context.Context, c *call, tok token.VisualToken) ([]Candidate, error) {
	start := time.Now()

	scanCtx, cancel := context.WithTimeout(ctx, o.cfg.ScanTimeout)
	defer cancel()

	release, err := o.rc.AcquireScan(scanCtx)
	if err != nil {
		err = translateError(scanCtx, err)
		o.metrics.RecordFullScan(0, time.Since(start), err)
		c.logger.LogFullScan(ctx, 0, 0, time.Since(start), err)
		return nil, err
	}
	defer release()

	epoch := o.epoch()
	all, err := storeCall(scanCtx, o.store.ReadAll)
	if err != nil {
		o.metrics.RecordFullScan(0, time.Since(start), err)
		c.logger.LogFullScan(ctx, 0, 0, time.Since(start), err)
		return nil, err
	}

	candidates, err := o.scoreAll(scanCtx, tok, all)
	if err != nil {
		err = translateError(scanCtx, err)
		o.metrics.RecordFullScan(len(all), time.Since(start), err)
		c.logger.LogFullScan(ctx, len(all), 0, time.Since(start), err)
		return nil, err
	}

	o.fill(tok.Buckets(), all, epoch)
	admitted := o.admit(candidates)
	o.metrics.RecordFullScan(len(all), time.Since(start), nil)
	c.logger.LogFullScan(ctx, len(all), admitted, time.Since(start), nil)
	return candidates, nil
}

// scoreAll scores every product, in parallel chunks once the scan reaches
// ParallelScoreThreshold.
func (o *Orchestrator) scoreAll(ctx context.Context, tok token.VisualToken, all []store.ProductMatch) ([]Candidate, error) {
	out := make([]Candidate, len(all))

	threshold := o.cfg.ParallelScoreThreshold
	if threshold == 0 || len(all) < threshold {
		for i, m := range all {
			if i%scoreChunkSize == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			out[i] = Candidate{Match: m, Score: o.scorer.Score(tok, m.Token)}
		}
		sortCandidates(out)
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for lo := 0; lo < len(all); lo += scoreChunkSize {
		hi := min(lo+scoreChunkSize, len(all))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				out[i] = Candidate{Match: all[i], Score: o.scorer.Score(tok, all[i].Token)}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sortCandidates(out)
	return out, nil
}

func (o *Orchestrator) epoch() uint64 {
	if o.index == nil {
		return 0
	}
	return o.index.Epoch()
}

// fill files the products of each bin, taken from a full read of the store,
// into the candidate index. Buckets that fit become complete.
func (o *Orchestrator) fill(bins []int, all []store.ProductMatch, epoch uint64) {
	if o.index == nil {
		return
	}
	for _, bin := range bins {
		var in []store.ProductMatch
		for _, m := range all {
			if m.InBucket(bin) {
				in = append(in, m)
			}
		}
		o.index.Fill(bin, in, epoch)
	}
}

// admit caches the top ShortlistSize candidates scoring at least
// AdmitThreshold.
func (o *Orchestrator) admit(candidates []Candidate) int {
	if o.index == nil {
		return 0
	}
	n := 0
	for _, c := range candidates {
		if n == o.cfg.ShortlistSize || c.Score < o.cfg.AdmitThreshold {
			break
		}
		if o.index.Admit(c.Match) {
			n++
		}
	}
	return n
}

// Warm preloads the candidate index from a full read of the token store and
// returns the number of products cached. Every bucket whose products fit is
// marked complete; an overflowing bucket keeps its most recently filed
// products.
func (o *Orchestrator) Warm(ctx context.Context) (int, error) {
	if err := o.checkOpen(); err != nil {
		return 0, newEngineError(OpWarm, err)
	}
	if o.index == nil {
		return 0, nil
	}

	readCtx, cancel := context.WithTimeout(ctx, o.cfg.ScanTimeout)
	defer cancel()

	epoch := o.index.Epoch()
	all, err := storeCall(readCtx, o.store.ReadAll)
	if err != nil {
		o.logger.LogWarm(ctx, 0, err)
		return 0, newEngineError(OpWarm, err)
	}

	bins := make([]int, o.index.Buckets())
	for i := range bins {
		bins[i] = i
	}
	o.fill(bins, all, epoch)

	loaded := o.index.Len()
	o.logger.LogWarm(ctx, loaded, nil)
	return loaded, nil
}
