// Package fiber implements stackful coroutines.
//
// The reference runtime switches stacks by loading a saved stack
// pointer directly (assembly per architecture, the "Hop, Skip & Jump"
// technique of original_source/crates/swapstack). Go offers no
// supported way to retarget a goroutine's stack pointer, and hand
// rolling per-arch assembly inside a Go module is exactly the kind of
// non-portable trick the rest of this codebase avoids. Instead each
// Fiber is backed by a real goroutine, and "swapping stacks" is a
// synchronous, unbuffered channel rendezvous between the resumer and
// the fiber goroutine: whichever side is not holding the channel is
// blocked, which gives the same single-active-side-at-a-time guarantee
// a stack swap gives, without touching SP/BP/IP directly. stack.Stack
// is still allocated and tracked per fiber so the guard-page and
// sizing invariants stay meaningful and testable.
package fiber

import (
	"fmt"

	"github.com/CortexFoundation/corevm/stack"
)

// Status mirrors stack.State for the fiber's own lifecycle, kept as a
// distinct type since a fiber can be Suspended (able to resume) in a
// way that is meaningful even when its backing stack.Stack has no
// notion of suspension depth.
type Status int32

const (
	StatusReady Status = iota
	StatusRunning
	StatusSuspended
	StatusDone
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusSuspended:
		return "suspended"
	case StatusDone:
		return "done"
	default:
		return "unknown"
	}
}

// Outcome is what Resume returns: either a suspension carrying a yield
// value, or completion carrying the fiber's return value.
type Outcome[Y, Ret any] struct {
	Done   bool
	Yield  Y
	Return Ret
}

// forcedUnwind is the sentinel panic value a fiber's entry trampoline
// recognizes as a cooperative cancellation request rather than a
// genuine fault, the Go rendering of the reference runtime's
// forced-unwind-on-drop behavior (a coroutine abandoned without being
// driven to completion unwinds its stack instead of leaking it).
type forcedUnwind struct{}

// Entry is the body of a fiber. co.Suspend lets it hand a yield value
// back to the resumer and receive the next resume value in return.
type Entry[R, Y, Ret any] func(co *Coroutine[R, Y, Ret], first R) Ret

// Fiber is a stackful coroutine parameterized on its resume type R,
// yield type Y, and final return type Ret.
type Fiber[R, Y, Ret any] struct {
	stack  *stack.Stack
	status Status
	entry  Entry[R, Y, Ret]

	toFiber   chan R
	fromFiber chan fiberMsg[Y, Ret]
	kill      chan struct{}
	stopped   chan struct{}

	started bool
}

type fiberMsg[Y, Ret any] struct {
	outcome   Outcome[Y, Ret]
	panicVal  any
	recovered bool
}

// Coroutine is the handle an Entry function uses to suspend itself.
type Coroutine[R, Y, Ret any] struct {
	f *Fiber[R, Y, Ret]
}

// Suspend yields value to the resumer and blocks until the fiber is
// resumed again, returning the resume value it was given. If the
// fiber is killed while suspended, Suspend panics with the internal
// forcedUnwind sentinel, which the entry trampoline goroutine started
// by the first Resume recovers from silently.
func (co *Coroutine[R, Y, Ret]) Suspend(value Y) R {
	f := co.f
	f.fromFiber <- fiberMsg[Y, Ret]{outcome: Outcome[Y, Ret]{Done: false, Yield: value}}
	select {
	case r := <-f.toFiber:
		return r
	case <-f.kill:
		panic(forcedUnwind{})
	}
}

// New creates a fiber with the given stack size (0 selects
// stack.DefaultSize) and entry function. The entry does not start
// running until the first Resume.
func New[R, Y, Ret any](stackSize uintptr, entry Entry[R, Y, Ret]) (*Fiber[R, Y, Ret], error) {
	st, err := stack.New(stackSize)
	if err != nil {
		return nil, fmt.Errorf("fiber: allocating stack: %w", err)
	}
	return &Fiber[R, Y, Ret]{
		stack:     st,
		status:    StatusReady,
		entry:     entry,
		toFiber:   make(chan R),
		fromFiber: make(chan fiberMsg[Y, Ret]),
		kill:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}, nil
}

func (f *Fiber[R, Y, Ret]) start(first R) {
	f.stack.SetState(stack.StateActive)
	f.status = StatusRunning
	go func() {
		defer close(f.stopped)
		defer func() {
			f.stack.SetState(stack.StateDead)
			if rec := recover(); rec != nil {
				if _, ok := rec.(forcedUnwind); ok {
					return
				}
				f.fromFiber <- fiberMsg[Y, Ret]{panicVal: rec, recovered: true}
			}
		}()
		co := &Coroutine[R, Y, Ret]{f: f}
		ret := f.entry(co, first)
		f.fromFiber <- fiberMsg[Y, Ret]{outcome: Outcome[Y, Ret]{Done: true, Return: ret}}
	}()
}

// Resume drives the fiber forward with value, blocking until it either
// suspends again or completes. Resuming a Done fiber panics, matching
// the reference runtime's "resuming a dead coroutine is a programmer
// error" contract.
func (f *Fiber[R, Y, Ret]) Resume(value R) Outcome[Y, Ret] {
	if f.status == StatusDone {
		panic("fiber: Resume called on a completed fiber")
	}
	if !f.started {
		f.started = true
		f.start(value)
	} else {
		f.status = StatusRunning
		f.toFiber <- value
	}

	msg := <-f.fromFiber
	if msg.recovered {
		f.status = StatusDone
		panic(msg.panicVal)
	}
	if msg.outcome.Done {
		f.status = StatusDone
	} else {
		f.status = StatusSuspended
	}
	return msg.outcome
}

// Kill requests the fiber unwind via the forced-unwind sentinel. It is
// a no-op if the fiber has never started or has already completed.
// Kill blocks until the fiber goroutine has fully exited.
func (f *Fiber[R, Y, Ret]) Kill() {
	if !f.started || f.status == StatusDone {
		return
	}
	close(f.kill)
	<-f.stopped
	f.status = StatusDone
}

// Status reports the fiber's current lifecycle state.
func (f *Fiber[R, Y, Ret]) Status() Status { return f.status }

// Stack returns the fiber's backing stack, primarily for diagnostics
// and GC stack-scanning integration.
func (f *Fiber[R, Y, Ret]) Stack() *stack.Stack { return f.stack }

// Close releases the fiber's backing stack memory. The fiber must be
// Done or never started.
func (f *Fiber[R, Y, Ret]) Close() error {
	if f.status == StatusRunning || f.status == StatusSuspended {
		return fmt.Errorf("fiber: Close called on a live fiber (status=%s)", f.status)
	}
	return f.stack.Close()
}
