// Package gc defines the abstract surface corevm's object model, TLAB
// allocator, and write barrier are built against. corevm itself does
// not implement a tracing collector: spec.md's runtime substrate is
// meant to plug into an external, already-written GC (mirroring how
// original_source/crates/vmkit binds to MMTk), so this package is
// interfaces plus the small amount of shared plumbing (allocation
// semantics, plan constraints) every binding needs regardless of which
// collector sits behind it.
package gc

import "context"

// AllocationSemantics selects which space an allocation should land
// in, mirroring the reference runtime's AllocationSemantics enum.
type AllocationSemantics int

const (
	// SemanticsDefault is the fast, usually-moving young-generation
	// allocator most objects use.
	SemanticsDefault AllocationSemantics = iota
	// SemanticsImmortal never moves and is never reclaimed by a
	// normal collection; used for VM-internal singletons.
	SemanticsImmortal
	// SemanticsNonMoving is collected but never relocated; used for
	// objects a native pointer might alias.
	SemanticsNonMoving
	// SemanticsLOS is the large-object space, bypassing the
	// bump-pointer fast path entirely.
	SemanticsLOS
)

func (s AllocationSemantics) String() string {
	switch s {
	case SemanticsDefault:
		return "default"
	case SemanticsImmortal:
		return "immortal"
	case SemanticsNonMoving:
		return "non_moving"
	case SemanticsLOS:
		return "los"
	default:
		return "unknown"
	}
}

// PlanConstraints reports fixed facts about the bound collector that
// the allocator and barrier fast paths need to specialize themselves,
// mirroring the reference runtime's PlanConstraints.
type PlanConstraints struct {
	Generational         bool
	MovesObjects         bool
	NeedsWriteBarrier    bool
	MaxNonLOSDefaultSize uintptr
}

// Plan is the bound collector's policy surface: which spaces exist,
// whether it is generational, and how big an object can be before it
// must go to the large-object space.
type Plan interface {
	Constraints() PlanConstraints
	// HandleUserCollectionRequest services an explicit
	// System.gc()-style request from managed code. Implementations
	// may treat this as a hint rather than a mandate.
	HandleUserCollectionRequest(ctx context.Context) error
}

// Mutator is a single mutator thread's binding to the collector: the
// allocation fast/slow paths and the post-allocation/barrier hooks a
// generated prologue would call. One Mutator exists per
// threads.TLSData.
type Mutator interface {
	// AllocateDefault attempts the fast bump-pointer path for a
	// SemanticsDefault allocation and falls back to AllocateSlow on
	// exhaustion.
	AllocateDefault(size, align uintptr) (uintptr, error)
	// Allocate is AllocateDefault generalized to an explicit
	// semantics, used for immortal/non-moving/LOS allocation sites.
	Allocate(size, align uintptr, semantics AllocationSemantics) (uintptr, error)
	// AllocateSlow is called once a thread-local buffer is exhausted;
	// it synchronizes with the collector and may trigger a collection.
	AllocateSlow(size, align uintptr, semantics AllocationSemantics) (uintptr, error)
	// PostAlloc runs collector bookkeeping (e.g. marking the object
	// as allocated black during concurrent marking) immediately after
	// the object's header has been written.
	PostAlloc(obj uintptr, size uintptr, semantics AllocationSemantics)
	// WriteBarrierSlow is the barrier fast path's fallback, invoked
	// when a pointer store crosses a generational or region boundary
	// the fast path can't resolve with a single bit test.
	WriteBarrierSlow(src, slot, target uintptr)
	// AllocatorSelector chooses which underlying allocator instance
	// handles semantics, so callers don't need to know the collector's
	// space layout.
	AllocatorSelector(semantics AllocationSemantics) int
	// Bind attaches the mutator to its owning thread's allocation
	// state (TLAB, remembered-set buffer). Destroy detaches and
	// flushes it, typically on thread exit.
	Bind()
	Destroy()
}

// AllocationSemanticsDefaultMaxSize is the minimum reasonable
// MaxNonLOSDefaultSize a Plan should report absent better information;
// TLABs are otherwise free to use any threshold the bound Plan gives.
const AllocationSemanticsDefaultMaxSize = 8192
