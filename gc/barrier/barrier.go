// Package barrier implements the generational write-barrier fast path
// and its remembered-set backing store, grounded on spec.md §4.10.
package barrier

import (
	"encoding/binary"
	"sync"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/steakknife/bloomfilter"
)

// byteGroupShift and wordShift give the side table's indexing scheme
// per spec.md §4.10: one side-table byte summarizes 1<<byteGroupShift
// heap bytes (addr>>6), and within that byte, bit (addr>>3)&7 tracks
// one 8-byte word. This is finer-grained than a card table: a single
// dirty store does not force re-scanning the other 56 bytes sharing
// its byte-group, only the one word.
const (
	byteGroupShift = 6
	wordShift      = 3
)

// SideTable is the side-metadata table backing the write barrier's
// fast path: one bit per heap word, set dirty by a pointer store and
// cleared by the next minor collection once the word has been
// rescanned.
type SideTable struct {
	mu   sync.RWMutex
	base uintptr
	bits []byte
}

// NewSideTable covers a heap region of heapSize bytes starting at
// base.
func NewSideTable(base uintptr, heapSize uintptr) *SideTable {
	n := (heapSize + (1 << byteGroupShift) - 1) >> byteGroupShift
	return &SideTable{base: base, bits: make([]byte, n)}
}

// index returns the side-table byte index and bit mask for addr's
// containing word, per spec.md §4.10 (addr>>6 for the byte, (addr>>3)&7
// for the bit).
func (s *SideTable) index(addr uintptr) (byteIdx int, bit byte) {
	rel := addr - s.base
	byteIdx = int(rel >> byteGroupShift)
	bit = 1 << ((rel >> wordShift) & 7)
	return byteIdx, bit
}

// MarkDirty is the write barrier's fast path: set the bit for the word
// containing addr. It is a plain byte load/store, no atomics, matching
// the reference runtime's tolerance for a racy double-mark (a dirty
// word gets rescanned at worst once more than strictly necessary).
func (s *SideTable) MarkDirty(addr uintptr) {
	i, bit := s.index(addr)
	if i < 0 || i >= len(s.bits) {
		return
	}
	s.bits[i] |= bit
}

func (s *SideTable) IsDirty(addr uintptr) bool {
	i, bit := s.index(addr)
	if i < 0 || i >= len(s.bits) {
		return false
	}
	return s.bits[i]&bit != 0
}

// ClearAll resets every bit, called once a minor collection has
// rescanned the whole table.
func (s *SideTable) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.bits {
		s.bits[i] = 0
	}
}

// slotKey packs a (src, slot) pair into the byte key fastcache stores
// remembered-set entries under.
func slotKey(src, slot uintptr) []byte {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[0:8], uint64(src))
	binary.LittleEndian.PutUint64(b[8:16], uint64(slot))
	return b[:]
}

// RememberedSet is the write barrier's slow path: entries the side
// table's word granularity can't represent precisely enough (an
// inter-generational pointer a generational collector must re-trace
// from exactly, not just "somewhere in this 8-byte word"). Dedup by
// a bloom filter keeps a hot mutator from flooding the cache with the
// same (src, slot) pair on every store to a long-lived write-mostly
// object.
type RememberedSet struct {
	mu     sync.Mutex
	cache  *fastcache.Cache
	dedup  *bloomfilter.Filter
	maxN   uint64
}

// NewRememberedSet sizes the overflow cache at maxBytes and the dedup
// filter for an expected maxEntries insertions.
func NewRememberedSet(maxBytes int, maxEntries uint64) (*RememberedSet, error) {
	filter, err := bloomfilter.NewOptimal(maxEntries, 0.01)
	if err != nil {
		return nil, err
	}
	return &RememberedSet{
		cache: fastcache.New(maxBytes),
		dedup: filter,
		maxN:  maxEntries,
	}, nil
}

// Record is the write barrier's slow path, called once MarkDirty's
// card is already dirty and the caller wants a precise entry too (or
// wants one that survives ClearAll). It is a no-op if the same
// (src, slot) pair was already recorded since the last Reset.
func (r *RememberedSet) Record(src, slot, target uintptr) {
	key := slotKey(src, slot)
	h := bloomfilter.HashBytes(key)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dedup.Contains(h) {
		return
	}
	r.dedup.Add(h)

	var v [8]byte
	binary.LittleEndian.PutUint64(v[:], uint64(target))
	r.cache.Set(key, v[:])
}

// Lookup returns the target recorded for (src, slot), if any. Since a
// repeat Record of the same pair is a no-op, this is the target from
// the first Record since the last Reset.
func (r *RememberedSet) Lookup(src, slot uintptr) (uintptr, bool) {
	key := slotKey(src, slot)
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.cache.Get(nil, key)
	if v == nil {
		return 0, false
	}
	return uintptr(binary.LittleEndian.Uint64(v)), true
}

// Reset clears both the overflow cache and the dedup filter, called
// once a full collection has processed every remembered-set entry.
func (r *RememberedSet) Reset(maxEntries uint64) error {
	filter, err := bloomfilter.NewOptimal(maxEntries, 0.01)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Reset()
	r.dedup = filter
	r.maxN = maxEntries
	return nil
}

// FastPath is the generational write barrier corevm inlines at every
// pointer store to a Member/WeakMember field: mark the source
// object's word dirty, and only fall to the precise RememberedSet
// when the caller explicitly asks for precision (e.g. a large object
// whose byte-group covers many unrelated fields).
func FastPath(side *SideTable, src uintptr) {
	side.MarkDirty(src)
}

// SlowPath is the barrier's precise fallback, used by
// gc.Mutator.WriteBarrierSlow implementations that need an exact
// (src, slot) -> target edge rather than just a dirty card.
func SlowPath(rs *RememberedSet, src, slot, target uintptr) {
	rs.Record(src, slot, target)
}
