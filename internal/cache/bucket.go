package cache

import (
	"sync"
	"sync/atomic"

	"github.com/otic/vision/store"
)

// entry is one cached product, shared by the slots of every bucket it is
// filed in. It is never mutated after creation.
type entry struct {
	match store.ProductMatch
	size  int64
}

// slot files an entry in one bucket. lastAccess is updated under the read lock.
type slot struct {
	entry      *entry
	lastAccess atomic.Int64
}

func newSlot(e *entry, now int64) *slot {
	s := &slot{entry: e}
	s.lastAccess.Store(now)
	return s
}

// bucket is a fixed-capacity LRU over the products of one histogram bin.
//
// complete is set while the bucket holds every registered product filed under
// its bin; evictions clear it.
type bucket struct {
	mu       sync.RWMutex
	capacity int
	slots    []*slot
	byID     map[string]int
	complete bool
}

func newBucket(capacity int) *bucket {
	return &bucket{
		capacity: capacity,
		slots:    make([]*slot, 0, capacity),
		byID:     make(map[string]int, capacity),
	}
}

// snapshot appends the entry of every slot to dst, stamps the slots with now
// and reports whether the bucket is complete.
func (b *bucket) snapshot(dst []*entry, now int64) ([]*entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.slots {
		s.lastAccess.Store(now)
		dst = append(dst, s.entry)
	}
	return dst, b.complete
}

// put files s, which must not be filed here yet. When the bucket is full the
// least recently used slot is evicted, the bucket stops being complete and
// the victim is returned.
// Caller holds b.mu for writing.
func (b *bucket) put(s *slot) (evicted *slot) {
	id := s.entry.match.ProductID
	if len(b.slots) < b.capacity {
		b.byID[id] = len(b.slots)
		b.slots = append(b.slots, s)
		return nil
	}

	victim := 0
	oldest := b.slots[0].lastAccess.Load()
	for i := 1; i < len(b.slots); i++ {
		if at := b.slots[i].lastAccess.Load(); at < oldest {
			victim, oldest = i, at
		}
	}

	evicted = b.slots[victim]
	delete(b.byID, evicted.entry.match.ProductID)
	b.slots[victim] = s
	b.byID[id] = victim
	b.complete = false
	return evicted
}

// remove deletes productID. Caller holds b.mu for writing.
func (b *bucket) remove(productID string) bool {
	i, ok := b.byID[productID]
	if !ok {
		return false
	}

	last := len(b.slots) - 1
	if i != last {
		b.slots[i] = b.slots[last]
		b.byID[b.slots[i].entry.match.ProductID] = i
	}
	b.slots[last] = nil
	b.slots = b.slots[:last]
	delete(b.byID, productID)
	return true
}

func (b *bucket) setComplete(complete bool) {
	b.mu.Lock()
	b.complete = complete
	b.mu.Unlock()
}

func (b *bucket) isComplete() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.complete
}

// reset drops all slots and forgets completeness.
func (b *bucket) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.slots = b.slots[:0]
	clear(b.byID)
	b.complete = false
}

func (b *bucket) len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.slots)
}
