// Package memstore provides an in-process store.TokenStore.
//
// Records live in a slot table; every locality bucket keeps a Roaring bitmap
// of the slots filed under it, so bucket reads never touch unrelated products.
// A product is filed under each distinct bin of its spatial signature.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/otic/vision/feature"
	"github.com/otic/vision/store"
)

// Store is an in-memory TokenStore. It is safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	slots      []store.ProductMatch
	free       []uint32
	live       *roaring.Bitmap
	buckets    map[int]*roaring.Bitmap
	byID       map[string]uint32
	byChecksum map[uint32]string
}

var _ store.BucketReader = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{
		live:       roaring.New(),
		buckets:    make(map[int]*roaring.Bitmap),
		byID:       make(map[string]uint32),
		byChecksum: make(map[uint32]string),
	}
}

// Len returns the number of registered products.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int(s.live.GetCardinality())
}

// ReadAll implements store.TokenStore.
func (s *Store) ReadAll(ctx context.Context) ([]store.ProductMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.live), nil
}

// ReadByBucket implements store.BucketReader.
func (s *Store) ReadByBucket(ctx context.Context, bucket int) ([]store.ProductMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	bm, ok := s.buckets[bucket]
	if !ok {
		return nil, nil
	}
	return s.collect(bm), nil
}

// ReadByID implements store.TokenStore.
func (s *Store) ReadByID(ctx context.Context, productID string) (store.ProductMatch, error) {
	if err := ctx.Err(); err != nil {
		return store.ProductMatch{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.byID[productID]
	if !ok {
		return store.ProductMatch{}, fmt.Errorf("%w: %s", store.ErrNotFound, productID)
	}
	return s.slots[slot].Clone(), nil
}

// Write implements store.TokenStore.
func (s *Store) Write(ctx context.Context, m store.ProductMatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.ProductID == "" {
		return fmt.Errorf("%w: empty product id", feature.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.byChecksum[m.Token.Checksum]; ok && owner != m.ProductID {
		return fmt.Errorf("%w: checksum %08x belongs to %s", store.ErrConflict, m.Token.Checksum, owner)
	}

	m = m.Clone()
	if slot, ok := s.byID[m.ProductID]; ok {
		old := s.slots[slot]
		s.unindex(slot, old)
		s.slots[slot] = m
		s.index(slot, m)
		return nil
	}

	var slot uint32
	if n := len(s.free); n > 0 {
		slot = s.free[n-1]
		s.free = s.free[:n-1]
		s.slots[slot] = m
	} else {
		slot = uint32(len(s.slots))
		s.slots = append(s.slots, m)
	}
	s.byID[m.ProductID] = slot
	s.live.Add(slot)
	s.index(slot, m)
	return nil
}

// Delete removes a product. Unknown ids are ignored.
func (s *Store) Delete(ctx context.Context, productID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.byID[productID]
	if !ok {
		return nil
	}
	s.unindex(slot, s.slots[slot])
	delete(s.byID, productID)
	s.live.Remove(slot)
	s.slots[slot] = store.ProductMatch{}
	s.free = append(s.free, slot)
	return nil
}

func (s *Store) index(slot uint32, m store.ProductMatch) {
	s.byChecksum[m.Token.Checksum] = m.ProductID
	for _, b := range m.Buckets() {
		s.bucket(b).Add(slot)
	}
}

func (s *Store) unindex(slot uint32, m store.ProductMatch) {
	delete(s.byChecksum, m.Token.Checksum)
	for _, b := range m.Buckets() {
		s.bucket(b).Remove(slot)
	}
}

func (s *Store) bucket(b int) *roaring.Bitmap {
	bm, ok := s.buckets[b]
	if !ok {
		bm = roaring.New()
		s.buckets[b] = bm
	}
	return bm
}

func (s *Store) collect(bm *roaring.Bitmap) []store.ProductMatch {
	out := make([]store.ProductMatch, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, s.slots[it.Next()].Clone())
	}
	return out
}
