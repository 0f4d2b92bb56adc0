package threads

import "sync"

// noHolder is the sentinel holder id meaning "unlocked"; real goroutine
// ids returned by goroutineID start at 1.
const noHolder = 0

// RecCount is an opaque recursion-count token returned by
// UnlockCompletely and consumed by Relock{No,With}Handshake.
type RecCount struct{ n uint64 }

// Monitor is a recursive mutex + condvar that is aware of the
// cooperative-safepoint protocol: its "with handshake" operations
// transition the calling thread to Parked before blocking so that a
// stop-the-world request never deadlocks against a mutator holding
// this lock (spec.md §4.7).
//
// Ownership bookkeeping (holder, recCount) lives behind meta rather
// than being implied by holding a plain sync.Mutex, since sync.Mutex
// is not itself recursive.
//
// The zero value is not usable; construct with NewMonitor.
type Monitor[T any] struct {
	meta     sync.Mutex
	cond     *sync.Cond
	holder   uint64
	recCount uint64
	// notifyGen counts NotifyOne/NotifyAll calls so WaitNoHandshake can
	// wait on a predicate distinct from lock-acquisition state (recCount
	// reaches zero on every unlock, not just on a notify).
	notifyGen uint64
	value     T
}

func NewMonitor[T any](value T) *Monitor[T] {
	m := &Monitor[T]{value: value}
	m.cond = sync.NewCond(&m.meta)
	return m
}

// MonitorGuard is the guard returned by the Lock* methods. It derefs to
// the monitor's protected value via Value.
type MonitorGuard[T any] struct {
	m      *Monitor[T]
	locked bool
}

// Value returns a pointer to the monitor's protected value. Valid only
// while the guard is held.
func (g *MonitorGuard[T]) Value() *T { return &g.m.value }

// LockNoHandshake acquires the monitor, recursively if the calling
// goroutine already holds it. It never transitions thread state and
// must not be used where the calling thread might need to wait for a
// GC stop-the-world to complete (use LockWithHandshake there instead).
func (m *Monitor[T]) LockNoHandshake() *MonitorGuard[T] {
	id := goroutineID()
	m.meta.Lock()
	for m.recCount > 0 && m.holder != id {
		m.cond.Wait()
	}
	m.holder = id
	m.recCount++
	m.meta.Unlock()
	return &MonitorGuard[T]{m: m, locked: true}
}

// UnlockCompletely releases the monitor regardless of recursion depth,
// returning a token that Relock{No,With}Handshake can use to restore
// the same recursion depth later.
func (m *Monitor[T]) UnlockCompletely(g *MonitorGuard[T]) RecCount {
	m.meta.Lock()
	rc := RecCount{n: m.recCount}
	m.recCount = 0
	m.holder = noHolder
	g.locked = false
	m.cond.Broadcast()
	m.meta.Unlock()
	return rc
}

// RelockNoHandshake re-acquires the monitor and restores rc's
// recursion depth.
func (m *Monitor[T]) RelockNoHandshake(rc RecCount) *MonitorGuard[T] {
	id := goroutineID()
	m.meta.Lock()
	for m.recCount > 0 {
		m.cond.Wait()
	}
	m.holder = id
	m.recCount = rc.n
	m.meta.Unlock()
	return &MonitorGuard[T]{m: m, locked: true}
}

// Unlock releases one level of recursion, waking waiters once the
// count reaches zero.
func (g *MonitorGuard[T]) Unlock() {
	if !g.locked {
		return
	}
	m := g.m
	m.meta.Lock()
	m.recCount--
	if m.recCount == 0 {
		m.holder = noHolder
		m.cond.Broadcast()
	}
	g.locked = false
	m.meta.Unlock()
}

// NotifyAll wakes every goroutine waiting on the monitor's condvar.
func (m *Monitor[T]) NotifyAll() {
	m.meta.Lock()
	m.notifyGen++
	m.cond.Broadcast()
	m.meta.Unlock()
}

// NotifyOne wakes one goroutine waiting on the monitor's condvar.
func (m *Monitor[T]) NotifyOne() {
	m.meta.Lock()
	m.notifyGen++
	m.cond.Signal()
	m.meta.Unlock()
}

// WaitNoHandshake releases the monitor for other waiters, blocks until
// NotifyOne or NotifyAll is called, and re-acquires it, preserving
// recursion depth across the wait (spec.md §4.7 wait_no_handshake).
//
// The wait loops on notifyGen rather than recCount: recCount alone
// would make the wait return as soon as any other holder releases the
// monitor, not only when this waiter is actually notified.
func (g *MonitorGuard[T]) WaitNoHandshake() {
	m := g.m
	m.meta.Lock()
	rc := m.recCount
	m.recCount = 0
	m.holder = noHolder
	m.cond.Broadcast()

	gen := m.notifyGen
	for m.notifyGen == gen {
		m.cond.Wait()
	}

	for m.recCount > 0 {
		m.cond.Wait()
	}
	m.holder = goroutineID()
	m.recCount = rc
	m.meta.Unlock()
}

// LockWithHandshake is like LockNoHandshake but, if the calling thread
// must wait for the monitor, parks the thread first so a GC
// stop-the-world can proceed, then calls CheckBlock once Running is
// reacquired, per spec.md §4.7.
func LockWithHandshake[T any](m *Monitor[T], tls *TLSData) *MonitorGuard[T] {
	id := goroutineID()
	m.meta.Lock()
	if m.recCount == 0 || m.holder == id {
		m.holder = id
		m.recCount++
		m.meta.Unlock()
		return &MonitorGuard[T]{m: m, locked: true}
	}
	m.meta.Unlock()

	tls.SaveThreadState()
	for {
		EnterParked(tls)
		m.meta.Lock()
		if m.recCount == 0 {
			break
		}
		m.meta.Unlock()
		LeaveParked(tls)
		m.meta.Lock()
		for m.recCount > 0 {
			m.cond.Wait()
		}
		m.meta.Unlock()
	}
	m.holder = id
	m.recCount++
	m.meta.Unlock()
	if !AttemptLeaveParkedNoBlock(tls) {
		LeaveParked(tls)
	}
	return &MonitorGuard[T]{m: m, locked: true}
}

// RelockWithHandshake mirrors LockWithHandshake but restores a
// recursion depth previously captured by UnlockCompletely.
func RelockWithHandshake[T any](m *Monitor[T], tls *TLSData, rc RecCount) *MonitorGuard[T] {
	tls.SaveThreadState()
	EnterParked(tls)
	m.meta.Lock()
	for m.recCount > 0 {
		m.cond.Wait()
	}
	m.holder = goroutineID()
	m.recCount = rc.n
	m.meta.Unlock()
	if !AttemptLeaveParkedNoBlock(tls) {
		LeaveParked(tls)
	}
	return &MonitorGuard[T]{m: m, locked: true}
}

// WaitWithHandshake releases the monitor completely, parks the calling
// thread for the wait, and relocks with a handshake on wakeup, so a
// waiter is always GC-safe while blocked (spec.md §4.7).
func WaitWithHandshake[T any](g *MonitorGuard[T], tls *TLSData) *MonitorGuard[T] {
	rc := g.m.UnlockCompletely(g)
	tls.SaveThreadState()
	EnterParked(tls)
	m := g.m
	m.meta.Lock()
	m.cond.Wait()
	m.meta.Unlock()
	LeaveParked(tls)
	return RelockWithHandshake(m, tls, rc)
}
