package threads

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestCustomAdapterBlocksAndReleasesThread exercises scenario S2: a
// non-GC block adapter posts its own block request and observes the
// owning thread transition Running -> RunningToBlock -> BlockedInParked,
// independently of the GC adapter every TLSData also carries.
func TestCustomAdapterBlocksAndReleasesThread(t *testing.T) {
	tls := NewTLSData()
	tls.setState(StateRunning)

	debugger := tls.RegisterBlockAdapter("debugger")
	require.False(t, debugger.HasBlockRequest())

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				Yieldpoint(tls)
				time.Sleep(time.Millisecond)
			}
		}
	}()

	token := debugger.RequestBlock()
	require.True(t, debugger.HasBlockRequest())
	require.True(t, debugger.HasBlockRequestWithToken(token))

	require.Eventually(t, func() bool {
		return tls.State() == StateBlockedInParked
	}, time.Second, time.Millisecond, "thread never reached BlockedInParked for the custom adapter's request")
	require.True(t, debugger.IsBlocked())

	// A different adapter's bits are unaffected: each adapter has its
	// own independent request/blocked state (spec.md §3).
	require.False(t, tls.GCAdapter().HasBlockRequest())
	require.False(t, tls.GCAdapter().IsBlocked())

	debugger.ClearBlockRequest()
	require.Eventually(t, func() bool {
		return tls.State() == StateRunning
	}, time.Second, time.Millisecond, "thread never resumed Running after the custom adapter's request was cleared")
	require.False(t, debugger.IsBlocked())

	close(stop)
}

// TestBlockAdapterTokenRulesOutABA covers HasBlockRequestWithToken: a
// token from a withdrawn request must not match a fresh request that
// happens to also find hasRequest true (spec.md §4.5's ABA case).
func TestBlockAdapterTokenRulesOutABA(t *testing.T) {
	tls := NewTLSData()
	tls.setState(StateRunning)
	custom := tls.RegisterBlockAdapter("custom")

	first := custom.RequestBlock()
	require.True(t, custom.HasBlockRequestWithToken(first))

	custom.ClearBlockRequest()
	second := custom.RequestBlock()

	require.False(t, custom.HasBlockRequestWithToken(first))
	require.True(t, custom.HasBlockRequestWithToken(second))

	custom.ClearBlockRequest()
}

// TestRequestBlockOnParkedThreadTransitionsDirectly covers the branch
// of spec.md §4.4 where a block request targets a thread that cannot
// observe a yieldpoint because it is already Parked: RequestBlock must
// transition it straight to BlockedInParked itself.
func TestRequestBlockOnParkedThreadTransitionsDirectly(t *testing.T) {
	tls := NewTLSData()
	tls.setState(StateParked)
	custom := tls.RegisterBlockAdapter("custom")

	custom.RequestBlock()
	require.Equal(t, StateBlockedInParked, tls.State())
	require.True(t, custom.IsBlocked())

	custom.ClearBlockRequest()
	LeaveParked(tls)
	require.Equal(t, StateRunning, tls.State())
}
