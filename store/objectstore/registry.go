package objectstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/otic/vision/store"
)

// ChecksumRegistry records which product owns each token checksum. Blob
// stores have no unique constraint, so the registry is what turns a
// duplicate registration into store.ErrConflict.
type ChecksumRegistry interface {
	// Claim assigns checksum to productID. Claiming a checksum the product
	// already owns succeeds; one owned by another product fails with
	// store.ErrConflict.
	Claim(ctx context.Context, checksum uint32, productID string) error
	// Release drops productID's claim. Claims held by other products and
	// missing claims are left alone.
	Release(ctx context.Context, checksum uint32, productID string) error
}

// MemoryRegistry is a process-local ChecksumRegistry. Use it when a single
// process writes to the registry.
type MemoryRegistry struct {
	mu     sync.Mutex
	owners map[uint32]string
}

var _ ChecksumRegistry = (*MemoryRegistry)(nil)

// NewMemoryRegistry returns an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{owners: make(map[uint32]string)}
}

// Claim implements ChecksumRegistry.
func (r *MemoryRegistry) Claim(ctx context.Context, checksum uint32, productID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.owners[checksum]; ok && owner != productID {
		return fmt.Errorf("%w: checksum %08x belongs to %s", store.ErrConflict, checksum, owner)
	}
	r.owners[checksum] = productID
	return nil
}

// Release implements ChecksumRegistry.
func (r *MemoryRegistry) Release(ctx context.Context, checksum uint32, productID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owners[checksum] == productID {
		delete(r.owners, checksum)
	}
	return nil
}

// Owner returns the product holding checksum.
func (r *MemoryRegistry) Owner(checksum uint32) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owners[checksum]
	return owner, ok
}
