// Package objectmodel implements the bit-packed object header, vtable
// table, and managed reference wrappers corevm hands to the bound
// collector, grounded on
// original_source/crates/vmkit/src/objectmodel/header.rs and
// .../vtable.rs.
package objectmodel

import "sync/atomic"

// HashState tracks an object's identity-hash lifecycle under a moving
// collector (spec.md §4.9):
//
//	Unhashed -> Hashed -> HashedAndMoved
//
// A Hashed object's hash is derived from its current address, which
// stays valid until a moving collector relocates it. The first move of
// a Hashed object stores that address-derived hash in a word just
// before the new copy, which is what HashedAndMoved records; later
// moves carry the word along. Moving an Unhashed object changes
// nothing, since no hash has been handed out yet.
type HashState uint8

const (
	// Unhashed is the initial state: no caller has ever asked for
	// this object's identity hash. 0 so the zero value of a freshly
	// allocated header reads as "never hashed" without extra work.
	Unhashed HashState = iota
	// Hashed means IdentityHash has been derived from this object's
	// address but it has not yet been relocated by a moving GC.
	Hashed
	// HashedAndMoved means the object was hashed before the
	// collector moved it; its hash bits are stored out-of-line
	// alongside the copy rather than recomputed from its new address.
	HashedAndMoved
)

func (h HashState) String() string {
	switch h {
	case Unhashed:
		return "unhashed"
	case Hashed:
		return "hashed"
	case HashedAndMoved:
		return "hashed_and_moved"
	default:
		return "unknown"
	}
}

// Header packs a VTablePointer with hash-state and GC bits into a
// single machine word. A VTable is required to live at an 8-byte
// aligned address (VTablePool guarantees this), which frees the low 3
// bits of its pointer value for flags:
//
//	bits 0-1: HashState
//	bit  2:   GC mark bit (collector-owned, corevm never reads it)
//	bits 3-63: VTablePointer, with its own low 3 bits always zero
type Header struct {
	word atomic.Uint64
}

const (
	headerHashMask  = 0x3
	headerMarkBit   = 0x4
	headerFlagsMask = headerHashMask | headerMarkBit
)

// NewHeader builds a header for a freshly allocated object pointing at
// vt, with HashState Unhashed and the mark bit clear.
func NewHeader(vt VTablePointer) Header {
	var h Header
	h.word.Store(uint64(vt))
	return h
}

func (h *Header) VTable() VTablePointer {
	return VTablePointer(h.word.Load() &^ headerFlagsMask)
}

func (h *Header) SetVTable(vt VTablePointer) {
	for {
		old := h.word.Load()
		new := (uint64(vt) &^ headerFlagsMask) | (old & headerFlagsMask)
		if h.word.CompareAndSwap(old, new) {
			return
		}
	}
}

func (h *Header) HashState() HashState {
	return HashState(h.word.Load() & headerHashMask)
}

// TransitionHash moves the header's hash state forward, failing (via
// false) if another goroutine raced it to the same transition - the
// identity-hash state machine is monotonic, so a failed CAS here means
// the caller should reread the state rather than retry blindly.
func (h *Header) TransitionHash(from, to HashState) bool {
	for {
		old := h.word.Load()
		if HashState(old&headerHashMask) != from {
			return false
		}
		new := (old &^ uint64(headerHashMask)) | uint64(to)
		if h.word.CompareAndSwap(old, new) {
			return true
		}
	}
}

func (h *Header) Marked() bool {
	return h.word.Load()&headerMarkBit != 0
}

func (h *Header) SetMarked(marked bool) {
	for {
		old := h.word.Load()
		var new uint64
		if marked {
			new = old | headerMarkBit
		} else {
			new = old &^ headerMarkBit
		}
		if old == new || h.word.CompareAndSwap(old, new) {
			return
		}
	}
}
