package threads

import "github.com/google/uuid"

// BlockAdapter is one named participant in the per-thread block
// protocol of spec.md §4.5: the collector, a debugger, and any
// embedder-defined subsystem each register their own adapter so they
// can independently post and withdraw a block request and observe
// whether their own thread has acknowledged it, without one adapter's
// request being confused with another's, or with a stale request of
// its own from an earlier round (the uuid token exists to rule that
// ABA case out; see HasBlockRequestWithToken).
//
// All of an adapter's state is guarded by its owning TLSData's
// blockMu, the "thread's monitor" spec.md §4.4/§4.6/§4.7 refer to: a
// requester (RequestBlock/ClearBlockRequest) and the owning thread
// itself (CheckBlock) serialize through the same lock and condvar so
// neither side can miss the other's update.
type BlockAdapter struct {
	name  string
	owner *TLSData

	hasRequest bool
	blocked    bool
	token      uuid.UUID
}

func newBlockAdapter(name string, owner *TLSData) *BlockAdapter {
	return &BlockAdapter{name: name, owner: owner}
}

// Name identifies the adapter for diagnostics, e.g. naming which
// subsystem is holding a thread blocked in a stack dump.
func (a *BlockAdapter) Name() string { return a.name }

// HasBlockRequest reports whether this adapter currently has an
// outstanding, unacknowledged block request for its thread.
func (a *BlockAdapter) HasBlockRequest() bool {
	a.owner.blockMu.Lock()
	defer a.owner.blockMu.Unlock()
	return a.hasRequest
}

// RequestBlock posts a new block request and returns a fresh token.
// The caller can later pass that token to HasBlockRequestWithToken to
// confirm the thread is still honoring *this* request rather than a
// later one that happened to also set the has-request bit.
//
// If the owning thread is already Parked, it cannot observe a
// yieldpoint to notice the request, so RequestBlock transitions it
// directly to BlockedInParked and marks it blocked itself (spec.md
// §4.4's "Parked -> BlockedInParked" rule).
func (a *BlockAdapter) RequestBlock() uuid.UUID {
	a.owner.blockMu.Lock()
	defer a.owner.blockMu.Unlock()

	token := uuid.New()
	a.token = token
	a.hasRequest = true
	a.owner.recomputeYieldCacheLocked()

	if a.owner.AttemptFastExecStatusTransition(StateParked, StateBlockedInParked) {
		a.blocked = true
	}
	a.owner.blockCond.Broadcast()
	return token
}

// ClearBlockRequest withdraws this adapter's block request, waking any
// goroutine waiting in the owning thread's check_block loop for it.
func (a *BlockAdapter) ClearBlockRequest() {
	a.owner.blockMu.Lock()
	defer a.owner.blockMu.Unlock()
	a.hasRequest = false
	a.owner.recomputeYieldCacheLocked()
	a.owner.blockCond.Broadcast()
}

// IsBlocked reports whether the owning thread has acknowledged this
// adapter's block request.
func (a *BlockAdapter) IsBlocked() bool {
	a.owner.blockMu.Lock()
	defer a.owner.blockMu.Unlock()
	return a.blocked
}

// HasBlockRequestWithToken reports whether this adapter both has an
// outstanding request and that request is the one identified by
// token, ruling out the ABA case where the request was cleared and a
// fresh one posted between the caller reading HasBlockRequest and
// acting on it.
func (a *BlockAdapter) HasBlockRequestWithToken(token uuid.UUID) bool {
	a.owner.blockMu.Lock()
	defer a.owner.blockMu.Unlock()
	return a.hasRequest && a.token == token
}

// BlockAdapterList is the set of adapters registered on one thread,
// each carrying its own independent request/blocked bits per spec.md
// §3 ("one bit per registered block adapter").
//
// Every *Locked method assumes the caller already holds owner.blockMu;
// they exist so CheckBlock can inspect and mutate every adapter in one
// critical section instead of re-entering each adapter's own locking
// methods (which would deadlock against the lock CheckBlock holds).
type BlockAdapterList struct {
	owner    *TLSData
	adapters []*BlockAdapter
}

// register creates and appends a new adapter under this list's owner.
// Unexported: embedders go through TLSData.RegisterBlockAdapter.
func (l *BlockAdapterList) register(name string) *BlockAdapter {
	a := newBlockAdapter(name, l.owner)
	l.adapters = append(l.adapters, a)
	return a
}

func (l *BlockAdapterList) hasAnyBlockRequestLocked() bool {
	for _, a := range l.adapters {
		if a.hasRequest {
			return true
		}
	}
	return false
}

// acknowledgeRequestedLocked sets the blocked bit on every adapter
// that currently has an outstanding request; CheckBlock calls this
// once it has decided to park the thread on their behalf.
func (l *BlockAdapterList) acknowledgeRequestedLocked() {
	for _, a := range l.adapters {
		if a.hasRequest {
			a.blocked = true
		}
	}
}

// clearAllBlockedLocked clears the blocked bit on every adapter;
// CheckBlock calls this once no adapter has a pending request left and
// it is about to resume Running.
func (l *BlockAdapterList) clearAllBlockedLocked() {
	for _, a := range l.adapters {
		a.blocked = false
	}
}
