//go:build amd64

package stack

// CalleeSaves is the x86-64 SysV callee-saved register set recorded by
// a swap, in the order the reference runtime's assembly pushes them:
// r15, r14, r13, r12, rbx, rbp.
type CalleeSaves struct {
	R15, R14, R13, R12, RBX, RBP uint64
}

// StackTop is the record a swap writes on the outgoing stack and reads
// from the incoming stack: a continuation-trampoline address, the full
// callee-save set, then the saved return address. See spec.md §6,
// "Stack-top layout".
type StackTop struct {
	ContinuationTrampoline uintptr
	CalleeSaves            CalleeSaves
	RetAddr                uintptr
}

// InitialStackTop is a StackTop followed by a ROP frame, used the
// first time a stack is resumed: the continuation pops the trampoline,
// restores callee-saves, and "returns" into the adapter, which moves
// the swap argument into the first argument register and "returns"
// into func.
type InitialStackTop struct {
	Top StackTop
	ROP ROPFrame
}
