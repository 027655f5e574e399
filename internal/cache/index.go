package cache

import (
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/otic/vision/resource"
	"github.com/otic/vision/store"
	"github.com/otic/vision/token"
)

// slotOverhead approximates the fixed bytes of a cached product.
const slotOverhead = 160

// Stats holds candidate index statistics.
type Stats struct {
	Entries         int
	Slots           int
	CompleteBuckets int
	Hits            int64
	Misses          int64
	Inserts         int64
	Evictions       int64
	Rejected        int64
	MemoryBytes     int64
}

// filed tracks the buckets a cached product is filed under.
type filed struct {
	entry *entry
	slots map[int]*slot
}

// CandidateIndex is a bucketed, fixed-capacity LRU of registered products.
// A product is filed under every distinct bin of its spatial signature, so
// two tokens sharing any quadrant bin always meet in at least one bucket.
//
// A bucket is complete while it holds every registered product filed under
// its bin. Fill marks a bucket complete; an eviction from it, a refused
// insert or an invalidation clears the mark. Only shortlists drawn from
// complete buckets can stand in for a full scan.
//
// It is safe for concurrent use.
type CandidateIndex struct {
	buckets []*bucket
	rc      *resource.Controller

	// mu serializes mutations. Lookups never take it.
	mu    sync.Mutex
	owner map[string]*filed
	epoch atomic.Uint64

	clock     atomic.Int64
	memory    atomic.Int64
	hits      atomic.Int64
	misses    atomic.Int64
	inserts   atomic.Int64
	evictions atomic.Int64
	rejected  atomic.Int64
}

// NewCandidateIndex creates an index with the given number of buckets (one per
// histogram bin). The capacity counts bucket slots and is divided evenly
// across all buckets, with at least one slot per bucket; a product takes one
// slot in each bucket it is filed under. If rc is provided, it will be used to
// track memory usage.
func NewCandidateIndex(buckets, capacity int, rc *resource.Controller) *CandidateIndex {
	if buckets < 1 {
		buckets = 1
	}
	perBucket := capacity / buckets
	if perBucket < 1 {
		perBucket = 1
	}

	idx := &CandidateIndex{
		buckets: make([]*bucket, buckets),
		rc:      rc,
		owner:   make(map[string]*filed),
	}
	for i := range idx.buckets {
		idx.buckets[i] = newBucket(perBucket)
	}
	return idx
}

// Buckets returns the number of buckets.
func (idx *CandidateIndex) Buckets() int { return len(idx.buckets) }

// BucketCapacity returns the number of slots per bucket.
func (idx *CandidateIndex) BucketCapacity() int { return idx.buckets[0].capacity }

func (idx *CandidateIndex) bucketFor(bin int) *bucket {
	if bin < 0 || bin >= len(idx.buckets) {
		return nil
	}
	return idx.buckets[bin]
}

func (idx *CandidateIndex) inRange(bins []int) bool {
	for _, bin := range bins {
		if idx.bucketFor(bin) == nil {
			return false
		}
	}
	return true
}

// Lookup returns every cached product filed under a bucket of t, ordered by
// product ID, together with the buckets of t that are not complete. The
// returned products are copies.
func (idx *CandidateIndex) Lookup(t token.VisualToken) (matches []store.ProductMatch, incomplete []int) {
	now := idx.clock.Add(1)

	var found []*entry
	for _, bin := range t.Buckets() {
		b := idx.bucketFor(bin)
		if b == nil {
			incomplete = append(incomplete, bin)
			continue
		}
		var complete bool
		found, complete = b.snapshot(found, now)
		if !complete {
			incomplete = append(incomplete, bin)
		}
	}

	if len(found) == 0 {
		idx.misses.Add(1)
		return nil, incomplete
	}
	idx.hits.Add(1)

	slices.SortFunc(found, func(a, b *entry) int {
		return strings.Compare(a.match.ProductID, b.match.ProductID)
	})
	found = slices.CompactFunc(found, func(a, b *entry) bool {
		return a.match.ProductID == b.match.ProductID
	})

	matches = make([]store.ProductMatch, len(found))
	for i, e := range found {
		matches[i] = e.match.Clone()
	}
	return matches, incomplete
}

// Get returns the cached product with the given ID.
func (idx *CandidateIndex) Get(productID string) (store.ProductMatch, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	f, ok := idx.owner[productID]
	if !ok {
		return store.ProductMatch{}, false
	}
	now := idx.clock.Add(1)
	for _, s := range f.slots {
		s.lastAccess.Store(now)
	}
	return f.entry.match.Clone(), true
}

// Epoch returns the invalidation counter. Pass it to Fill to detect
// invalidations that raced with the store read.
func (idx *CandidateIndex) Epoch() uint64 { return idx.epoch.Load() }

// Insert files m under every bucket of its token, replacing any cached copy.
// Insert reports false when a bucket is out of range or the memory budget
// refuses the entry; a refusal leaves the buckets of m incomplete.
func (idx *CandidateIndex) Insert(m store.ProductMatch) bool {
	bins := m.Buckets()
	if m.ProductID == "" || !idx.inRange(bins) {
		idx.rejected.Add(1)
		return false
	}

	e := &entry{match: m.Clone(), size: entrySize(m)}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.removeLocked(m.ProductID)

	if err := idx.rc.AcquireMemory(e.size); err != nil {
		idx.invalidateLocked(bins)
		idx.rejected.Add(1)
		return false
	}

	f := idx.adoptLocked(e, len(bins))
	now := idx.clock.Add(1)
	for _, bin := range bins {
		idx.fileLocked(f, bin, now)
	}
	return true
}

// Admit files a product read from the store under every bucket of its token.
// Unlike Insert it keeps a copy cached under a different token, which comes
// from a later local write. Admit reports whether the product is cached.
func (idx *CandidateIndex) Admit(m store.ProductMatch) bool {
	bins := m.Buckets()
	if m.ProductID == "" || !idx.inRange(bins) {
		idx.rejected.Add(1)
		return false
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	cached, clean := idx.mergeLocked(m, bins, idx.clock.Add(1))
	if !cached && !clean {
		idx.invalidateLocked(bins)
	}
	return cached
}

// Fill files matches, read from the store for bin, into that bucket. The
// bucket becomes complete when every match fits and nothing was invalidated
// since epoch. Fill reports whether the bucket is complete.
func (idx *CandidateIndex) Fill(bin int, matches []store.ProductMatch, epoch uint64) bool {
	b := idx.bucketFor(bin)
	if b == nil {
		return false
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	complete := len(matches) <= b.capacity
	now := idx.clock.Add(1)
	bins := []int{bin}
	for _, m := range matches {
		if m.ProductID == "" || !m.InBucket(bin) {
			continue
		}
		if _, clean := idx.mergeLocked(m, bins, now); !clean {
			complete = false
		}
	}

	if idx.epoch.Load() != epoch {
		complete = false
	}
	b.setComplete(complete)
	return complete
}

// mergeLocked files m under those of bins it is not filed under yet. A product
// cached under a different token keeps its cached copy. clean is false when
// memory was refused or filing evicted another product. Requires mu.
func (idx *CandidateIndex) mergeLocked(m store.ProductMatch, bins []int, now int64) (cached, clean bool) {
	f, ok := idx.owner[m.ProductID]
	if ok && f.entry.match.Token.ID != m.Token.ID {
		return false, true
	}
	if !ok {
		e := &entry{match: m.Clone(), size: entrySize(m)}
		if err := idx.rc.AcquireMemory(e.size); err != nil {
			idx.rejected.Add(1)
			return false, false
		}
		f = idx.adoptLocked(e, len(bins))
	}

	clean = true
	for _, bin := range bins {
		if _, filed := f.slots[bin]; filed {
			continue
		}
		if idx.fileLocked(f, bin, now) {
			clean = false
		}
	}
	return true, clean
}

// adoptLocked registers e, whose memory is already acquired. Requires mu.
func (idx *CandidateIndex) adoptLocked(e *entry, bins int) *filed {
	f := &filed{entry: e, slots: make(map[int]*slot, bins)}
	idx.owner[e.match.ProductID] = f
	idx.memory.Add(e.size)
	idx.inserts.Add(1)
	return f
}

// fileLocked puts f into the bucket of bin and reports whether that evicted
// another product. Requires mu.
func (idx *CandidateIndex) fileLocked(f *filed, bin int, now int64) bool {
	b := idx.buckets[bin]
	s := newSlot(f.entry, now)

	b.mu.Lock()
	evicted := b.put(s)
	b.mu.Unlock()

	f.slots[bin] = s
	if evicted == nil {
		return false
	}

	idx.evictions.Add(1)
	id := evicted.entry.match.ProductID
	if victim, ok := idx.owner[id]; ok && victim.entry == evicted.entry {
		delete(victim.slots, bin)
		if len(victim.slots) == 0 {
			delete(idx.owner, id)
			idx.release(victim.entry.size)
		}
	}
	return true
}

// Remove drops a product from the index. The buckets it was filed under, and
// any extra bins given, stop being complete: the store may still hold a
// version of it.
func (idx *CandidateIndex) Remove(productID string, bins ...int) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if f, ok := idx.owner[productID]; ok {
		bins = append(bins, f.entry.match.Buckets()...)
	}
	idx.invalidateLocked(bins)
	return idx.removeLocked(productID)
}

// removeLocked requires mu.
func (idx *CandidateIndex) removeLocked(productID string) bool {
	f, ok := idx.owner[productID]
	if !ok {
		return false
	}
	for bin := range f.slots {
		b := idx.buckets[bin]
		b.mu.Lock()
		b.remove(productID)
		b.mu.Unlock()
	}
	delete(idx.owner, productID)
	idx.release(f.entry.size)
	return true
}

// invalidateLocked requires mu.
func (idx *CandidateIndex) invalidateLocked(bins []int) {
	idx.epoch.Add(1)
	for _, bin := range bins {
		if b := idx.bucketFor(bin); b != nil {
			b.setComplete(false)
		}
	}
}

func (idx *CandidateIndex) release(size int64) {
	idx.memory.Add(-size)
	idx.rc.ReleaseMemory(size)
}

// Len returns the number of cached products.
func (idx *CandidateIndex) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.owner)
}

// Reset drops every entry and forgets which buckets are complete. Statistics
// are kept.
func (idx *CandidateIndex) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.epoch.Add(1)
	for _, b := range idx.buckets {
		b.reset()
	}
	for _, f := range idx.owner {
		idx.release(f.entry.size)
	}
	clear(idx.owner)
}

// Stats returns a snapshot of the index statistics.
func (idx *CandidateIndex) Stats() Stats {
	s := Stats{
		Entries:     idx.Len(),
		Hits:        idx.hits.Load(),
		Misses:      idx.misses.Load(),
		Inserts:     idx.inserts.Load(),
		Evictions:   idx.evictions.Load(),
		Rejected:    idx.rejected.Load(),
		MemoryBytes: idx.memory.Load(),
	}
	for _, b := range idx.buckets {
		s.Slots += b.len()
		if b.isComplete() {
			s.CompleteBuckets++
		}
	}
	return s
}

func entrySize(m store.ProductMatch) int64 {
	n := slotOverhead +
		len(m.ProductID) + len(m.BrandName) + len(m.ProductName) + len(m.Token.ID) +
		len(m.Token.Descriptor.Histogram)*8
	return int64(n)
}
