// Package runtime binds stack, fiber, threads, and gc into the
// external ABI surface spec.md §6 describes: the entry points an
// embedder (a compiler-generated prologue, an interpreter loop) calls
// into to allocate, trace, and coordinate with a running VM instance.
package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CortexFoundation/corevm/fiber"
	"github.com/CortexFoundation/corevm/gc"
	"github.com/CortexFoundation/corevm/gc/barrier"
	"github.com/CortexFoundation/corevm/gc/objectmodel"
	"github.com/CortexFoundation/corevm/gc/tlab"
	"github.com/CortexFoundation/corevm/rlog"
	"github.com/CortexFoundation/corevm/stack"
	"github.com/CortexFoundation/corevm/threads"
	"github.com/CortexFoundation/corevm/vmmetrics"
)

// Config selects the sizes and bound collector a VM is built with.
type Config struct {
	Plan           gc.Plan
	NewMutator     func(tls *threads.TLSData) gc.Mutator
	StackSize      uintptr
	TLABSlabSize   uintptr
	HeapBase       uintptr
	HeapSize       uintptr
	RememberedMax  int
	RememberedN    uint64
	VTableCacheLen int
	CrashLogPath   string
}

// VM is one instance of the runtime substrate: a thread registry, an
// object model bound to a particular collector, and the allocation
// fast paths every mutator thread shares.
type VM struct {
	cfg Config

	registry   *threads.Registry
	vtables    *objectmodel.VTablePool
	vtableTbl  *objectmodel.VTableTable
	sideTable  *barrier.SideTable
	remembered *barrier.RememberedSet
	crashLog   *CrashLog

	bindMu sync.Mutex
	binds  map[uuid.UUID]*mutatorState

	stackSize uintptr

	log *rlog.Logger
}

// New constructs a VM from cfg. The caller remains responsible for
// calling ThreadStart on the goroutine that will act as the initial
// mutator.
func New(cfg Config) (*VM, error) {
	if cfg.NewMutator == nil {
		return nil, fmt.Errorf("runtime: Config.NewMutator is required")
	}
	vtableTbl, err := objectmodel.NewVTableTable(cfg.VTableCacheLen)
	if err != nil {
		return nil, err
	}
	remembered, err := barrier.NewRememberedSet(cfg.RememberedMax, cfg.RememberedN)
	if err != nil {
		return nil, err
	}

	var crashLog *CrashLog
	if cfg.CrashLogPath != "" {
		crashLog, err = OpenCrashLog(cfg.CrashLogPath)
		if err != nil {
			return nil, err
		}
	}

	vm := &VM{
		cfg:        cfg,
		registry:   threads.NewRegistry(),
		vtables:    objectmodel.NewVTablePool(),
		vtableTbl:  vtableTbl,
		sideTable:  barrier.NewSideTable(cfg.HeapBase, cfg.HeapSize),
		remembered: remembered,
		crashLog:   crashLog,
		binds:      make(map[uuid.UUID]*mutatorState),
		stackSize:  effectiveStackSize(cfg.StackSize),
		log:        rlog.Default.WithPrefix("runtime"),
	}
	return vm, nil
}

// effectiveStackSize resolves the default coroutine stack size,
// shrinking it under host memory pressure so a burst of coroutine
// creation doesn't itself exhaust the machine. Falls back to base
// unchanged if host stats can't be sampled (e.g. in a sandboxed CI
// container without /proc).
func effectiveStackSize(base uintptr) uintptr {
	if base == 0 {
		base = stack.DefaultSize
	}
	stats, err := vmmetrics.Sample(50 * time.Millisecond)
	if err != nil {
		return base
	}
	return vmmetrics.SuggestStackSize(stats, base)
}

// StackSize returns the coroutine stack size new fibers should be
// created with, per effectiveStackSize's host-pressure adjustment.
func (vm *VM) StackSize() uintptr { return vm.stackSize }

// NewFiber allocates a coroutine sized per vm.StackSize, the entry
// point compiled code uses to spin up a new stackful computation
// bound to this VM.
func NewFiber[R, Y, Ret any](vm *VM, entry fiber.Entry[R, Y, Ret]) (*fiber.Fiber[R, Y, Ret], error) {
	return fiber.New[R, Y, Ret](vm.StackSize(), entry)
}

// Close releases any resources the VM owns (currently just the crash
// log, if configured).
func (vm *VM) Close() error {
	return vm.crashLog.Close()
}

// mutatorState is what a registered thread's TLSData.userPtr-style
// side channel would carry in the reference runtime; Go doesn't give
// TLSData a void* field, so the VM keeps its own map instead.
type mutatorState struct {
	mutator gc.Mutator
	tlab    *tlab.TLAB
}

// ThreadStart registers the calling goroutine as a new mutator thread,
// bound to a fresh gc.Mutator and TLAB, and returns the control block
// the rest of the ABI surface expects as an argument (spec.md §6's
// thread-start operation).
func (vm *VM) ThreadStart() *threads.TLSData {
	tls := threads.NewTLSData()
	vm.registry.AddThread(tls)

	mutator := vm.cfg.NewMutator(tls)
	mutator.Bind()
	state := &mutatorState{mutator: mutator, tlab: tlab.New(mutator, vm.cfg.TLABSlabSize)}
	vm.bind(tls, state)

	vm.log.Debug("thread started", "id", tls.ID())
	return tls
}

// ThreadExit flushes tls's TLAB, destroys its mutator binding, and
// removes it from the registry. It must be called by the same
// goroutine ThreadStart registered.
func (vm *VM) ThreadExit(tls *threads.TLSData) {
	if st := vm.lookup(tls); st != nil {
		st.tlab.Flush()
		st.mutator.Destroy()
		vm.unbind(tls)
	}
	vm.registry.RemoveCurrentThread()
	vm.log.Debug("thread exited", "id", tls.ID())
}

// CurrentThread returns the calling goroutine's TLSData, or nil if it
// was never registered via ThreadStart.
func (vm *VM) CurrentThread() *threads.TLSData {
	return vm.registry.Current()
}

// Allocate is the default (SemanticsDefault) allocation entry point:
// the TLAB bump-pointer fast path, falling back through the bound
// mutator's slow path as needed. The bump attempt is wrapped in
// threads.AssertRunningThroughout since spec.md guarantees it never
// suspends the calling thread; the refill/slow path that can fall
// through to a real collection is deliberately outside the assertion.
func (vm *VM) Allocate(tls *threads.TLSData, size, align uintptr) (uintptr, error) {
	st := vm.lookup(tls)
	if st == nil {
		return 0, ErrThreadNotRegistered
	}

	var addr uintptr
	var fast bool
	threads.AssertRunningThroughout(tls, func() {
		addr, fast = st.tlab.TryBump(size, align)
	})
	if fast {
		return addr, nil
	}

	addr, err := st.tlab.Allocate(size, align)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrOutOfMemory, err)
	}
	return addr, nil
}

// AllocateImmortal, AllocateNonMoving, and AllocateLOS allocate
// outside the default TLAB-backed young space, going straight to the
// bound mutator (spec.md §6).
func (vm *VM) AllocateImmortal(tls *threads.TLSData, size, align uintptr) (uintptr, error) {
	return vm.allocateWith(tls, size, align, gc.SemanticsImmortal)
}

func (vm *VM) AllocateNonMoving(tls *threads.TLSData, size, align uintptr) (uintptr, error) {
	return vm.allocateWith(tls, size, align, gc.SemanticsNonMoving)
}

func (vm *VM) AllocateLOS(tls *threads.TLSData, size, align uintptr) (uintptr, error) {
	return vm.allocateWith(tls, size, align, gc.SemanticsLOS)
}

func (vm *VM) allocateWith(tls *threads.TLSData, size, align uintptr, sem gc.AllocationSemantics) (uintptr, error) {
	st := vm.lookup(tls)
	if st == nil {
		return 0, ErrThreadNotRegistered
	}
	addr, err := st.mutator.Allocate(size, align, sem)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrOutOfMemory, err)
	}
	return addr, nil
}

// WriteBarrierFast marks src's side-table word dirty. Generated code
// inlines this call at every managed pointer store; spec.md guarantees
// it never suspends the calling thread, so it runs under
// threads.AssertRunningThroughout.
func (vm *VM) WriteBarrierFast(tls *threads.TLSData, src uintptr) {
	threads.AssertRunningThroughout(tls, func() {
		barrier.FastPath(vm.sideTable, src)
	})
}

// WriteBarrierSlow records a precise (src, slot) -> target edge,
// called from the bound mutator's WriteBarrierSlow implementation.
func (vm *VM) WriteBarrierSlow(src, slot, target uintptr) {
	barrier.SlowPath(vm.remembered, src, slot, target)
}

// ObjectVTable reads h's vtable pointer.
func (vm *VM) ObjectVTable(h *objectmodel.Header) objectmodel.VTablePointer {
	return h.VTable()
}

// ObjectHash returns obj's identity hash, deriving it from the
// object's address on first use and persisting it across a future
// move per spec.md §4.9.
func (vm *VM) ObjectHash(h *objectmodel.Header, obj, size uintptr) uint32 {
	return objectmodel.IdentityHash(h, obj, size)
}

// RequestGC forwards a collection request to the bound Plan, blocking
// until it completes or ctx is cancelled.
func (vm *VM) RequestGC(ctx context.Context) error {
	if vm.cfg.Plan == nil {
		return nil
	}
	return vm.cfg.Plan.HandleUserCollectionRequest(ctx)
}

// StopTheWorld runs fn with every registered mutator thread parked at
// a safepoint, the collective operation a full collection needs.
func (vm *VM) StopTheWorld(fn func()) error {
	return vm.registry.Barrier(fn)
}

// Swapstack resumes f with value, the runtime-level entry point a
// compiled coroutine-resume call site would target.
func Swapstack[R, Y, Ret any](f *fiber.Fiber[R, Y, Ret], value R) fiber.Outcome[Y, Ret] {
	return f.Resume(value)
}

// Yieldpoint is the cooperative safepoint compiled code calls at loop
// backedges; see threads.Yieldpoint for the slow path.
func (vm *VM) Yieldpoint(tls *threads.TLSData) {
	threads.Yieldpoint(tls)
}

// Go starts fn as a new mutator thread, wrapping it in the entry
// trampoline ThreadStart/ThreadExit need bracketing any thread body:
// registration and TLAB binding before fn runs, and a guaranteed
// ThreadExit afterwards whether fn returns normally or unwinds itself
// early via ExitThread.
func (vm *VM) Go(fn func(tls *threads.TLSData)) {
	go func() {
		tls := vm.ThreadStart()
		defer func() {
			if r := recover(); r != nil {
				if _, ok := r.(forcedExit); !ok {
					vm.ThreadExit(tls)
					panic(r)
				}
			}
			vm.ThreadExit(tls)
		}()
		fn(tls)
	}()
}

// ExitThread unwinds the calling goroutine out of its Go-launched
// thread body immediately, running deferred cleanup along the way.
// It must only be called from a function passed to VM.Go.
func ExitThread() {
	panic(forcedExit{})
}

// Registry exposes the underlying thread registry, primarily for a
// diagnostics server.
func (vm *VM) Registry() *threads.Registry { return vm.registry }

// VTables exposes the vtable pool, for type registration at class-load
// time.
func (vm *VM) VTables() *objectmodel.VTablePool { return vm.vtables }

// --- per-thread mutator binding ---
//
// TLSData has no embedder-extensible field for VM-specific state, so
// the VM keeps its own id-keyed map rather than growing TLSData with a
// field only this package uses.

func (vm *VM) bind(tls *threads.TLSData, state *mutatorState) {
	vm.bindMu.Lock()
	defer vm.bindMu.Unlock()
	vm.binds[tls.ID()] = state
}

func (vm *VM) unbind(tls *threads.TLSData) {
	vm.bindMu.Lock()
	defer vm.bindMu.Unlock()
	delete(vm.binds, tls.ID())
}

func (vm *VM) lookup(tls *threads.TLSData) *mutatorState {
	vm.bindMu.Lock()
	defer vm.bindMu.Unlock()
	return vm.binds[tls.ID()]
}
