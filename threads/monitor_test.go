package threads

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMonitorRecursiveLock(t *testing.T) {
	m := NewMonitor(0)
	g1 := m.LockNoHandshake()
	g2 := m.LockNoHandshake()
	*g2.Value() = 42
	g2.Unlock()
	g1.Unlock()
	require.Equal(t, 42, m.value)
}

func TestMonitorExcludesOtherGoroutines(t *testing.T) {
	m := NewMonitor(0)
	g := m.LockNoHandshake()

	acquired := make(chan struct{})
	go func() {
		other := m.LockNoHandshake()
		close(acquired)
		other.Unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second goroutine acquired the monitor while the first held it")
	case <-time.After(50 * time.Millisecond):
	}

	g.Unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second goroutine never acquired the monitor after release")
	}
}

func TestMonitorUnlockCompletelyAndRelock(t *testing.T) {
	m := NewMonitor("x")
	g := m.LockNoHandshake()
	g2 := m.LockNoHandshake()
	_ = g2

	rc := m.UnlockCompletely(g2)
	require.Equal(t, uint64(2), rc.n)

	g3 := m.RelockNoHandshake(rc)
	require.Equal(t, "x", *g3.Value())
	g3.Unlock()
}

func TestMonitorWaitNoHandshakeBlocksUntilNotified(t *testing.T) {
	m := NewMonitor(0)
	woken := make(chan struct{})

	go func() {
		g := m.LockNoHandshake()
		g.WaitNoHandshake()
		close(woken)
		g.Unlock()
	}()

	// Give the waiter time to reach WaitNoHandshake; it must not have
	// woken yet, since nothing has notified it.
	select {
	case <-woken:
		t.Fatal("WaitNoHandshake returned before any Notify")
	case <-time.After(50 * time.Millisecond):
	}

	m.NotifyAll()

	select {
	case <-woken:
	case <-time.After(time.Second):
		t.Fatal("WaitNoHandshake never woke after NotifyAll")
	}
}
