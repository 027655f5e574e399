// Package storetest provides fault injection and a conformance suite for
// store.TokenStore implementations.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/otic/vision/store"
)

// Fault defines specific failure behavior.
type Fault struct {
	// Err is returned instead of calling the wrapped store.
	Err error
	// Delay is applied before the call.
	Delay time.Duration
	// IgnoreContext makes the delay deaf to cancellation, simulating a driver
	// that does not honor its context.
	IgnoreContext bool
}

// FaultyStore is a TokenStore wrapper that can inject errors and latency.
type FaultyStore struct {
	Store store.TokenStore

	mu     sync.Mutex
	rules  map[string]Fault // operation name -> fault
	Calls  map[string]*atomic.Int64
	closed bool
}

// Operation names accepted by AddRule.
const (
	OpReadAll      = "ReadAll"
	OpReadByID     = "ReadByID"
	OpReadByBucket = "ReadByBucket"
	OpWrite        = "Write"
)

// NewFaultyStore wraps s.
func NewFaultyStore(s store.TokenStore) *FaultyStore {
	f := &FaultyStore{
		Store: s,
		rules: make(map[string]Fault),
		Calls: make(map[string]*atomic.Int64),
	}
	for _, op := range []string{OpReadAll, OpReadByID, OpReadByBucket, OpWrite} {
		f.Calls[op] = new(atomic.Int64)
	}
	return f
}

// AddRule installs a fault for one operation.
func (f *FaultyStore) AddRule(op string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[op] = fault
}

// ClearRules removes every installed fault.
func (f *FaultyStore) ClearRules() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = make(map[string]Fault)
}

// SetUnavailable makes every operation fail with store.ErrUnavailable.
func (f *FaultyStore) SetUnavailable(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = down
}

// CallCount returns how often op was invoked.
func (f *FaultyStore) CallCount(op string) int64 {
	return f.Calls[op].Load()
}

func (f *FaultyStore) before(ctx context.Context, op string) error {
	f.Calls[op].Add(1)

	f.mu.Lock()
	fault, ok := f.rules[op]
	down := f.closed
	f.mu.Unlock()

	if down {
		return fmt.Errorf("%s: connection refused: %w", op, store.ErrUnavailable)
	}
	if !ok {
		return nil
	}

	if fault.Delay > 0 {
		if fault.IgnoreContext {
			time.Sleep(fault.Delay)
		} else {
			timer := time.NewTimer(fault.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return fault.Err
}

func (f *FaultyStore) ReadAll(ctx context.Context) ([]store.ProductMatch, error) {
	if err := f.before(ctx, OpReadAll); err != nil {
		return nil, err
	}
	return f.Store.ReadAll(ctx)
}

func (f *FaultyStore) ReadByID(ctx context.Context, productID string) (store.ProductMatch, error) {
	if err := f.before(ctx, OpReadByID); err != nil {
		return store.ProductMatch{}, err
	}
	return f.Store.ReadByID(ctx, productID)
}

func (f *FaultyStore) ReadByBucket(ctx context.Context, bucket int) ([]store.ProductMatch, error) {
	if err := f.before(ctx, OpReadByBucket); err != nil {
		return nil, err
	}
	return store.ReadByBucket(ctx, f.Store, bucket)
}

func (f *FaultyStore) Write(ctx context.Context, m store.ProductMatch) error {
	if err := f.before(ctx, OpWrite); err != nil {
		return err
	}
	return f.Store.Write(ctx, m)
}
