// Package stack implements the Stack object and the synthetic
// stack-top records described by the runtime substrate's stack-switch
// contract: a guarded memory region plus the bookkeeping (SP/BP/IP,
// lifecycle state, link to the caller stack) a cooperating fiber and
// the garbage collector both need to treat the region as a walkable
// call stack.
//
// Real control transfer between stacks is performed by package fiber,
// which backs each Stack with a goroutine; this package owns only the
// memory and the recorded machine state, never the goroutine itself.
package stack

import (
	"fmt"
	"sync/atomic"
)

// DefaultSize is the default usable stack size: 4 MiB, matching the
// reference runtime this substrate was distilled from.
const DefaultSize = 4 << 20

// State is the lifecycle state of a Stack, per the runtime substrate's
// stack state machine: New -> Ready -> Active -> Suspended -> Dead.
type State int32

const (
	StateNew State = iota
	StateReady
	StateActive
	StateSuspended
	StateDead
	StateUnknown
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateReady:
		return "ready"
	case StateActive:
		return "active"
	case StateSuspended:
		return "suspended"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Stack owns a guarded memory region and the recorded machine state of
// a suspended (or active) stackful computation.
//
// Invariant: lower <= sp <= upper while the stack is Suspended or New;
// the guard pages are never touched for the life of the stack
// (enforced by mprotect on platforms that support it, see region_unix.go).
type Stack struct {
	region  *region
	size    uintptr
	sp      uintptr
	bp      uintptr
	ip      uintptr
	state   atomic.Int32
	link    *Stack
	native  bool
	initTop *InitialStackTop
	userPtr any
}

// New allocates a Stack of the given usable size (rounded up to the
// page size; zero means DefaultSize), bracketed by two guard pages.
func New(size uintptr) (*Stack, error) {
	if size == 0 {
		size = DefaultSize
	}
	r, err := newRegion(size)
	if err != nil {
		return nil, fmt.Errorf("stack: allocate region: %w", err)
	}
	s := &Stack{
		region: r,
		size:   r.usable,
		sp:     r.upper,
		bp:     r.upper,
	}
	s.state.Store(int32(StateNew))
	return s, nil
}

// FromNative wraps the OS-native stack of the calling goroutine/OS
// thread for bookkeeping purposes (thread_start records the outgoing
// native SP here, per the runtime substrate's thread_start contract).
// It owns no guarded region and Close is a no-op.
func FromNative() *Stack {
	s := &Stack{native: true}
	s.state.Store(int32(StateActive))
	return s
}

// IsNative reports whether this Stack wraps an OS-native stack rather
// than an owned guarded region.
func (s *Stack) IsNative() bool { return s.native }

// Close unmaps the guarded region. Calling Close on a Stack that is
// Active is a contract violation.
func (s *Stack) Close() error {
	if s.native || s.region == nil {
		return nil
	}
	if State(s.state.Load()) == StateActive {
		return fmt.Errorf("stack: close of active stack")
	}
	return s.region.close()
}

func (s *Stack) Size() uintptr { return s.size }
func (s *Stack) SP() uintptr   { return s.sp }
func (s *Stack) BP() uintptr   { return s.bp }
func (s *Stack) IP() uintptr   { return s.ip }

func (s *Stack) SetSP(v uintptr) { s.sp = v }
func (s *Stack) SetBP(v uintptr) { s.bp = v }
func (s *Stack) SetIP(v uintptr) { s.ip = v }

func (s *Stack) State() State    { return State(s.state.Load()) }
func (s *Stack) SetState(v State) { s.state.Store(int32(v)) }

// Link returns the stack this one should swap back into when it
// yields, i.e. the caller stack recorded at the most recent resume.
func (s *Stack) Link() *Stack     { return s.link }
func (s *Stack) SetLink(l *Stack) { s.link = l }

// Bounds returns the usable region's [lower, upper) bounds. Calling
// Bounds on a native-wrapped stack returns (0, 0).
func (s *Stack) Bounds() (lower, upper uintptr) {
	if s.region == nil {
		return 0, 0
	}
	return s.region.lower, s.region.upper
}

// UserData/SetUserData let a fiber attach its coroutine record (the
// Option<F> callback box of the reference runtime) to the stack it
// owns without this package needing to know fiber's types.
func (s *Stack) UserData() any       { return s.userPtr }
func (s *Stack) SetUserData(v any)   { s.userPtr = v }

// Initialize lays down the synthetic top-of-stack record so that the
// first swap-in looks, to the swap contract, identical to resuming a
// previously-suspended stack: entry is what begins executing, adapter
// is an opaque tag threaded through to the fiber package's trampoline
// (this package does not interpret it).
func (s *Stack) Initialize(entry uintptr, adapter uintptr) {
	lower, upper := s.Bounds()
	_ = lower
	s.initTop = &InitialStackTop{
		Top: StackTop{
			ContinuationTrampoline: adapter,
		},
		ROP: ROPFrame{
			Func: entry,
		},
	}
	s.sp = upper
	s.state.Store(int32(StateReady))
}

// InitialTop returns the synthetic top-of-stack record pushed by
// Initialize, or nil if Initialize has not been called.
func (s *Stack) InitialTop() *InitialStackTop { return s.initTop }

// ROPFrame is the two-word record {function, saved-return} pushed onto
// a target stack so that on return from the trampoline, control enters
// function, and on return from function, control continues where the
// caller would have continued. See spec glossary "ROP frame".
type ROPFrame struct {
	Func     uintptr
	SavedRet uintptr
}
