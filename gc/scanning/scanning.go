// Package scanning is the façade the bound collector's tracer calls
// through to walk a corevm object's managed references, grounded on
// the tail of original_source/crates/vmkit/src/objectmodel.rs and
// .../mm/scanning.rs.
package scanning

import (
	"sync"
	"unsafe"

	"github.com/CortexFoundation/corevm/gc/objectmodel"
)

func unsafeAdd(base, off uintptr) unsafe.Pointer {
	return unsafe.Pointer(base + off)
}

// Visitor is invoked once per managed slot a traced object holds. The
// collector supplies an implementation that enqueues the slot's
// referent for further tracing (or updates it, for a moving
// collector's forwarding pass).
type Visitor func(slot uintptr)

// TraceKind selects how an object's vtable wants to be traced,
// mirroring the reference runtime's three-way dispatch: objects with
// no managed references at all skip tracing entirely rather than
// paying for an empty callback.
type TraceKind int

const (
	// KindNoTrace marks an object that holds no managed references
	// (a boxed primitive, a raw byte buffer) - the collector can skip
	// it without ever calling into corevm.
	KindNoTrace TraceKind = iota
	// KindScanSlots traces a fixed, vtable-known set of slot offsets.
	KindScanSlots
	// KindScanObjects defers entirely to the vtable's own Trace
	// function, for variable-shaped objects (arrays, hash maps) whose
	// slot layout isn't known statically.
	KindScanObjects
)

// ScanSlots traces obj's fixed slots at the given byte offsets,
// calling visit with the slot's address (obj + offset) once per slot
// that currently holds a non-null reference.
func ScanSlots(obj uintptr, offsets []uintptr, visit Visitor) {
	for _, off := range offsets {
		m := (*objectmodel.Member)(unsafeAdd(obj, off))
		if !m.IsNull() {
			visit(obj + off)
		}
	}
}

// ScanObjects defers to vt's own Trace callback, for objects whose
// reference layout can't be expressed as a fixed offset list.
func ScanObjects(vt *objectmodel.VTable, obj uintptr, visit Visitor) {
	if vt.Trace == nil {
		return
	}
	vt.Trace(obj, visit)
}

// NoTrace is the callback installed for KindNoTrace objects; it exists
// so dispatch tables can hold a uniform function value instead of a
// nil special case at every call site.
func NoTrace(obj uintptr, visit Visitor) {}

// Dispatch traces obj according to vt's declared kind.
func Dispatch(vt *objectmodel.VTable, kind TraceKind, obj uintptr, offsets []uintptr, visit Visitor) {
	switch kind {
	case KindNoTrace:
		return
	case KindScanSlots:
		ScanSlots(obj, offsets, visit)
	case KindScanObjects:
		ScanObjects(vt, obj, visit)
	}
}

// WeakCallback is run once per weak reference the collector has
// decided is either alive (referent survived) or dead (referent did
// not) at the end of a tracing pass.
type WeakCallback func(obj uintptr) (alive bool)

// WeakQueue collects weak-reference callbacks registered during
// tracing and runs them after the strong trace has reached a
// fixpoint. A callback that requeues more weak work (common when a
// weak map's value itself holds other weak references) is re-run in
// the next pass rather than dropped, matching the re-run-if-requeued
// semantics of the reference runtime's weak processing loop.
type WeakQueue struct {
	mu      sync.Mutex
	pending []weakEntry
}

type weakEntry struct {
	obj uintptr
	cb  WeakCallback
}

func NewWeakQueue() *WeakQueue {
	return &WeakQueue{}
}

// Enqueue registers a weak callback to run on the next Drain.
func (q *WeakQueue) Enqueue(obj uintptr, cb WeakCallback) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, weakEntry{obj: obj, cb: cb})
}

// Len reports how many callbacks are currently queued.
func (q *WeakQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Drain runs every queued callback once, clearing the queue first so
// that a callback which calls Enqueue again (requeuing itself or
// scheduling new weak work discovered while it ran) is picked up by
// the next Drain rather than being lost or run twice in this pass.
// It returns how many callbacks reported their referent dead.
func (q *WeakQueue) Drain() (deadCount int) {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, e := range batch {
		if !e.cb(e.obj) {
			deadCount++
		}
	}
	return deadCount
}

// DrainUntilStable repeatedly drains the queue until a pass enqueues
// no further work, bounding iterations at maxPasses to guarantee
// termination even if two callbacks keep re-requeuing each other.
func (q *WeakQueue) DrainUntilStable(maxPasses int) (totalDead int) {
	for i := 0; i < maxPasses; i++ {
		if q.Len() == 0 {
			return totalDead
		}
		totalDead += q.Drain()
	}
	return totalDead
}
