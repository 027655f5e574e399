package resource

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when memory limit would be exceeded.
var ErrMemoryLimitExceeded = errors.New("memory limit exceeded")

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for managed memory.
	// If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// MaxConcurrentScans is the maximum number of full store scans in flight.
	// If 0, defaults to 1.
	MaxConcurrentScans int64

	// ScansPerSecond limits how often full scans may start. If 0, unlimited.
	ScansPerSecond float64
}

// Controller manages shared resources (memory, scan concurrency, scan rate).
type Controller struct {
	cfg Config

	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	scanSem     *semaphore.Weighted
	scanLimiter *rate.Limiter // nil if unlimited
	scansActive atomic.Int64
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxConcurrentScans <= 0 {
		cfg.MaxConcurrentScans = 1
	}

	c := &Controller{
		cfg:     cfg,
		scanSem: semaphore.NewWeighted(cfg.MaxConcurrentScans),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.ScansPerSecond > 0 {
		burst := int(cfg.MaxConcurrentScans)
		c.scanLimiter = rate.NewLimiter(rate.Limit(cfg.ScansPerSecond), burst)
	}

	return c
}

// Config returns the limits the controller was created with.
func (c *Controller) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.cfg
}

// AcquireMemory attempts to reserve memory.
// Returns ErrMemoryLimitExceeded if the limit would be exceeded.
func (c *Controller) AcquireMemory(bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(bytes) {
			return ErrMemoryLimitExceeded
		}
	}

	c.memUsed.Add(bytes)
	return nil
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the current memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// AcquireScan waits for a scan slot and, if configured, a rate token.
// The returned release func must be called exactly once.
func (c *Controller) AcquireScan(ctx context.Context) (release func(), err error) {
	if c == nil {
		return func() {}, nil
	}

	if err := c.scanSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if c.scanLimiter != nil {
		if err := c.scanLimiter.Wait(ctx); err != nil {
			c.scanSem.Release(1)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			// The limiter refuses waits that would outlast the deadline.
			return nil, fmt.Errorf("scan rate limit: %w", context.DeadlineExceeded)
		}
	}

	c.scansActive.Add(1)
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			c.scansActive.Add(-1)
			c.scanSem.Release(1)
		}
	}, nil
}

// ActiveScans returns the number of scans currently holding a slot.
func (c *Controller) ActiveScans() int64 {
	if c == nil {
		return 0
	}
	return c.scansActive.Load()
}
