// Package osr implements the on-stack-replacement helpers used to
// splice a captured continuation onto a different stack: pushing a
// synthetic return frame ahead of a real resume point (the "Hop, Skip
// & Jump" technique of original_source/crates/swapstack/src/stack.rs),
// and walking a goroutine's existing frames when the corevm runtime
// needs to find where to re-enter a parked mutator, for example to
// print a thread's Go-level call stack in a diagnostics dump.
//
// corevm does not need OSR for deoptimization the way a JIT would: Go
// has no JIT to deoptimize out of. The operations here exist because
// fiber.Fiber's goroutine-backed coroutines still need to locate and
// describe "where a suspended fiber is" for diagnostics and for the
// stack-scanning handoff to gc/scanning, the same bookkeeping role
// osr.rs's frame cursor plays for the reference runtime's stackful
// coroutines.
package osr

import (
	gostack "github.com/go-stack/stack"

	"github.com/CortexFoundation/corevm/stack"
)

// Frame describes one entry of an unwound call stack.
type Frame struct {
	PC   uintptr
	Func string
	File string
	Line int
}

// FrameCursor walks a sequence of Frames from innermost (most recently
// called) outward, mirroring osr.rs's FrameCursor used to locate a
// synthetic frame's insertion point.
type FrameCursor struct {
	frames []Frame
	idx    int
}

func NewFrameCursor(frames []Frame) *FrameCursor {
	return &FrameCursor{frames: frames}
}

// Frame returns the frame currently under the cursor, or false if the
// cursor has walked past the last frame.
func (c *FrameCursor) Frame() (Frame, bool) {
	if c.idx >= len(c.frames) {
		return Frame{}, false
	}
	return c.frames[c.idx], true
}

// Advance moves the cursor one frame outward (toward the caller).
func (c *FrameCursor) Advance() { c.idx++ }

// FindByFunc advances the cursor until it sits on a frame whose Func
// equals name, returning false if no such frame remains.
func (c *FrameCursor) FindByFunc(name string) bool {
	for {
		f, ok := c.Frame()
		if !ok {
			return false
		}
		if f.Func == name {
			return true
		}
		c.Advance()
	}
}

// Unwinder produces the current call frames for some execution
// context. corevm's production unwinder (below) walks the calling
// goroutine; a fiber.Fiber could supply a fake Unwinder in tests
// without touching runtime internals.
type Unwinder interface {
	Unwind(skip int) []Frame
}

// GoStackUnwinder is the production Unwinder, backed by
// github.com/go-stack/stack.
type GoStackUnwinder struct{}

func (GoStackUnwinder) Unwind(skip int) []Frame {
	cs := gostack.Trace().TrimRuntime()
	out := make([]Frame, 0, len(cs))
	for i, c := range cs {
		if i < skip {
			continue
		}
		out = append(out, Frame{
			PC:   uintptr(c),
			Func: c.Frame().Function,
			File: c.Frame().File,
			Line: c.Frame().Line,
		})
	}
	return out
}

// PushFrame records a synthetic return frame onto top's ROP slot, so
// that when the stack is next resumed control lands in Func with
// SavedRet as the return address to continue at - the Go analogue of
// stack.rs's push_rop_frame used to "hop" into a trampoline before
// "skipping" to the real entry point.
func PushFrame(top *stack.InitialStackTop, frame stack.ROPFrame) {
	top.ROP = frame
}

// PopFramesTo drops frames from cursor until it reaches one whose Func
// matches target, returning the frames it discarded. Used when
// unwinding a captured stack trace down to the fiber entry trampoline
// so diagnostics don't show the trampoline's own plumbing frames.
func PopFramesTo(cursor *FrameCursor, target string) []Frame {
	var popped []Frame
	for {
		f, ok := cursor.Frame()
		if !ok || f.Func == target {
			return popped
		}
		popped = append(popped, f)
		cursor.Advance()
	}
}

// ReconstructStackswapTop rebuilds an InitialStackTop for a stack that
// is being handed a fresh entry point and adapter trampoline, the Go
// analogue of stack.rs's initialize_stack used by Swapstack's "jump"
// step once the synthetic frames are in place.
func ReconstructStackswapTop(entry, adapter uintptr, rop stack.ROPFrame) stack.InitialStackTop {
	top := stack.InitialStackTop{}
	top.Top.ContinuationTrampoline = adapter
	top.Top.RetAddr = entry
	top.ROP = rop
	return top
}
