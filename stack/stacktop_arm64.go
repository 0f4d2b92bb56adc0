//go:build arm64

package stack

// CalleeSaves is the AArch64 callee-saved register set: d8-d15 (as
// their raw 64-bit bit patterns), x19-x28, the frame pointer and link
// register.
type CalleeSaves struct {
	D            [8]uint64
	X            [10]uint64
	FP, LR       uint64
}

// StackTop mirrors the amd64 layout's role for AArch64: continuation
// trampoline, callee-saves, saved return address (LR on this arch
// doubles as the "return address" slot conceptually).
type StackTop struct {
	ContinuationTrampoline uintptr
	CalleeSaves            CalleeSaves
	RetAddr                uintptr
}

// InitialStackTop, see the amd64 variant's doc comment; identical role,
// architecture-specific CalleeSaves layout.
type InitialStackTop struct {
	Top StackTop
	ROP ROPFrame
}
