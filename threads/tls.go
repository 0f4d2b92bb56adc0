package threads

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// TLSData is the per-mutator-thread control block: the Go rendering of
// spec.md §4.4's thread-local data, keyed off goroutineID instead of a
// language TLS slot (see goid.go).
type TLSData struct {
	id uuid.UUID

	execStatus atomic.Int32 // State, accessed both by the owner and by the GC coordinator

	yieldpointsEnabled atomic.Bool
	// yieldRequested caches the OR of every registered block adapter's
	// has-block-request bit, so Yieldpoint's hot path costs one atomic
	// load instead of walking blockAdapters. Written only while blockMu
	// is held (see recomputeYieldCacheLocked); read lock-free.
	yieldRequested atomic.Bool

	parkNesting int32 // depth of nested EnterParked/LeaveParked calls; only touched by the owning goroutine

	// blockMu and blockCond are "the thread's monitor" spec.md
	// §4.4/§4.6/§4.7 refer to for check_block: a dedicated lock per
	// thread, distinct from the generic Monitor[T] mutators lock
	// application state with, used solely to serialize block-request
	// requesters against this thread's own CheckBlock loop.
	blockMu       sync.Mutex
	blockCond     *sync.Cond
	blockAdapters BlockAdapterList
	gcAdapter     *BlockAdapter

	savedSP uintptr
	savedBP uintptr
	savedIP uintptr

	registry *Registry

	// stats
	yieldpointsTaken atomic.Uint64
	handshakesJoined atomic.Uint64
}

// NewTLSData constructs a control block in StateNew, not yet registered
// with any Registry. Every thread carries a GC block adapter from
// construction, since stop-the-world is not optional (spec.md §4.5);
// embedders add further adapters with RegisterBlockAdapter.
func NewTLSData() *TLSData {
	t := &TLSData{id: uuid.New()}
	t.execStatus.Store(int32(StateNew))
	t.yieldpointsEnabled.Store(true)
	t.blockCond = sync.NewCond(&t.blockMu)
	t.blockAdapters.owner = t
	t.gcAdapter = t.blockAdapters.register("gc")
	return t
}

// GCAdapter returns the block adapter the collector uses to stop this
// thread for a collection.
func (t *TLSData) GCAdapter() *BlockAdapter { return t.gcAdapter }

// RegisterBlockAdapter creates and returns a new, independently
// addressable block adapter for this thread, e.g. one a debugger or a
// custom embedder subsystem installs to request a block of its own
// without interfering with the collector's (spec.md §4.5).
func (t *TLSData) RegisterBlockAdapter(name string) *BlockAdapter {
	t.blockMu.Lock()
	defer t.blockMu.Unlock()
	return t.blockAdapters.register(name)
}

// recomputeYieldCacheLocked refreshes yieldRequested from the current
// set of adapters. Callers must hold blockMu.
func (t *TLSData) recomputeYieldCacheLocked() {
	t.yieldRequested.Store(t.blockAdapters.hasAnyBlockRequestLocked())
}

func (t *TLSData) ID() uuid.UUID { return t.id }

func (t *TLSData) State() State { return State(t.execStatus.Load()) }

func (t *TLSData) setState(s State) { t.execStatus.Store(int32(s)) }

// AttemptFastExecStatusTransition performs a lock-free compare-and-swap
// from "from" to "to", returning false if another party (typically the
// GC coordinator asynchronously requesting a block) changed the state
// first.
func (t *TLSData) AttemptFastExecStatusTransition(from, to State) bool {
	return t.execStatus.CompareAndSwap(int32(from), int32(to))
}

// SetBlockedExecStatus forces the state to BlockedInParked; used by the
// owning thread right before entering a native call it promises not to
// touch GC references from (spec.md §4.4 rule 3).
func (t *TLSData) SetBlockedExecStatus() { t.setState(StateBlockedInParked) }

// SaveThreadState is called before a thread parks. It captures nothing
// itself: the saved SP/BP/IP are whatever SetSavedContext last stored.
// Grounded on the teacher's pattern of explicit save/restore pairs
// around native transitions rather than a signal-based capture.
func (t *TLSData) SaveThreadState() {
	// Real SP/BP/IP capture belongs to the fiber/stack layer; TLSData
	// only carries the most recent values a coroutine swap reported.
}

func (t *TLSData) SetSavedContext(sp, bp, ip uintptr) {
	t.savedSP, t.savedBP, t.savedIP = sp, bp, ip
}

func (t *TLSData) SavedContext() (sp, bp, ip uintptr) {
	return t.savedSP, t.savedBP, t.savedIP
}

func (t *TLSData) YieldpointsEnabled() bool { return t.yieldpointsEnabled.Load() }
func (t *TLSData) EnableYieldpoints()       { t.yieldpointsEnabled.Store(true) }
func (t *TLSData) DisableYieldpoints()      { t.yieldpointsEnabled.Store(false) }
