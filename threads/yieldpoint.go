package threads

// Yieldpoint is the cooperative safepoint a mutator thread calls at
// loop backedges and method prologues (spec.md §4.6). It is cheap in
// the common case: a single load of the cached OR of every block
// adapter's has-block-request bit.
func Yieldpoint(tls *TLSData) {
	if !tls.YieldpointsEnabled() {
		return
	}
	if tls.yieldRequested.Load() {
		CheckYieldpoint(tls)
	}
}

// CheckYieldpoint performs the slow path once a yieldpoint observes a
// pending block request: transition to RunningToBlock, then run
// CheckBlock to park and wait out every adapter that requested it.
func CheckYieldpoint(tls *TLSData) {
	if !tls.AttemptFastExecStatusTransition(StateRunning, StateRunningToBlock) {
		return
	}
	tls.yieldpointsTaken.Add(1)
	CheckBlock(tls)
	tls.setState(StateRunning)
	tls.handshakesJoined.Add(1)
}

// CheckBlock waits out every pending block request. It acquires the
// thread's monitor (blockMu/blockCond); if any adapter has a request
// outstanding it moves the thread to BlockedInParked and acknowledges
// those adapters, then loops while any adapter still reports one.
// CheckBlock stores no state on exit: its callers (CheckYieldpoint,
// LeaveParked) set Running afterwards, and AttemptLeaveParkedNoBlock
// also leaves BlockedInParked directly when no request is outstanding.
//
// It is called both by a Running thread that hit a yieldpoint with a
// pending request (CheckYieldpoint, above) and by a Parked thread on
// its way back to Running (LeaveParked, below), in case a requester
// forced it straight from Parked to BlockedInParked while it could not
// observe a yieldpoint (BlockAdapter.RequestBlock).
func CheckBlock(tls *TLSData) {
	tls.blockMu.Lock()
	defer tls.blockMu.Unlock()

	if tls.blockAdapters.hasAnyBlockRequestLocked() {
		tls.setState(StateBlockedInParked)
		tls.blockAdapters.acknowledgeRequestedLocked()
		tls.blockCond.Broadcast()
	}
	for tls.blockAdapters.hasAnyBlockRequestLocked() {
		tls.blockCond.Wait()
	}
	tls.blockAdapters.clearAllBlockedLocked()
}

// CheckBlockNoSaveContext is CheckBlock for call sites that have
// already captured SP/BP/IP themselves (e.g. a fiber swap) and must
// not let CheckBlock's callee clobber it.
func CheckBlockNoSaveContext(tls *TLSData) {
	CheckBlock(tls)
}

// BlockSync posts a block request to tls via adapter and waits for
// that specific adapter to be acknowledged; used by the stop-the-world
// barrier, which needs every thread actually parked before its
// critical section runs.
func BlockSync(tls *TLSData, adapter *BlockAdapter) {
	adapter.RequestBlock()

	tls.blockMu.Lock()
	for !adapter.blocked && tls.State() != StateTerminated {
		tls.blockCond.Wait()
	}
	tls.blockMu.Unlock()
}

// BlockAsync requests a block via adapter without waiting for
// acknowledgement, letting the caller fan the request out to many
// threads before waiting on any of them.
func BlockAsync(tls *TLSData, adapter *BlockAdapter) {
	adapter.RequestBlock()
}

// Unblock withdraws adapter's block request on tls, letting the thread
// resume once no other adapter still has a request outstanding.
func Unblock(tls *TLSData, adapter *BlockAdapter) {
	adapter.ClearBlockRequest()
}

// EnterParked transitions a thread into the privileged Parked state,
// e.g. just before a blocking syscall. The GC may freely walk this
// thread's last saved stack while it is parked.
func EnterParked(tls *TLSData) {
	tls.parkNesting++
	if tls.parkNesting == 1 {
		tls.setState(StateParked)
	}
}

// EnterParkedBlocked is EnterParked for a thread that is already
// acknowledging a block request (StateRunningToBlock), landing in
// BlockedInParked instead of Parked so the requester can tell the two
// apart.
func EnterParkedBlocked(tls *TLSData) {
	tls.parkNesting++
	tls.setState(StateBlockedInParked)
}

// AttemptLeaveParkedNoBlock tries to leave Parked/BlockedInParked for
// Running without blocking; it fails if any block adapter currently
// has an outstanding request, in which case the caller must LeaveParked
// instead (which waits one out via CheckBlock).
func AttemptLeaveParkedNoBlock(tls *TLSData) bool {
	tls.blockMu.Lock()
	blocked := tls.blockAdapters.hasAnyBlockRequestLocked()
	tls.blockMu.Unlock()
	if blocked {
		return false
	}

	if tls.parkNesting > 0 {
		tls.parkNesting--
	}
	if tls.parkNesting == 0 {
		tls.setState(StateRunning)
	}
	return true
}

// LeaveParked leaves Parked/BlockedInParked for Running, running
// CheckBlock first so a block request posted while this thread was
// Parked (and so forced straight to BlockedInParked; see
// BlockAdapter.RequestBlock) is properly waited out before it resumes.
func LeaveParked(tls *TLSData) {
	CheckBlock(tls)
	if tls.parkNesting > 0 {
		tls.parkNesting--
	}
	if tls.parkNesting == 0 {
		tls.setState(StateRunning)
	}
}

// AssertRunningThroughout runs fn with a debug assertion that the
// calling thread remains Running for its whole duration. spec.md
// guarantees certain fast paths (TLAB bump allocation, the write
// barrier's fast path) never suspend; this wraps those call sites to
// catch a future regression that makes one of them block. Unlike its
// name's predecessor it never itself parks the thread, since doing so
// would defeat the assertion it exists to make.
func AssertRunningThroughout(tls *TLSData, fn func()) {
	if tls.State() != StateRunning {
		panic("threads: AssertRunningThroughout entered with thread not Running")
	}
	fn()
	if tls.State() != StateRunning {
		panic("threads: AssertRunningThroughout: thread left Running during a fast path that must not suspend")
	}
}
