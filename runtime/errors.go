package runtime

import "errors"

// Sentinel errors returned across the ABI surface (spec.md §8's error
// handling design: explicit sentinels checked with errors.Is rather
// than string matching).
var (
	ErrOutOfMemory         = errors.New("runtime: out of memory")
	ErrStackDead           = errors.New("runtime: stack is dead")
	ErrHashcodeUnavailable = errors.New("runtime: identity hash unavailable for this object")
	ErrThreadNotRegistered = errors.New("runtime: calling goroutine has no registered thread")
	ErrAlreadyStopped      = errors.New("runtime: VM is already stopped")
)

// forcedExit is the sentinel panic value VM.Go's entry trampoline
// recovers to unwind a thread body early via ExitThread, the
// runtime-level analogue of fiber's forcedUnwind. It never escapes
// VM.Go: callers observe a clean ThreadExit, not a panic.
type forcedExit struct{}
