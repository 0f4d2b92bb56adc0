package scanning

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/CortexFoundation/corevm/gc/objectmodel"
)

func TestScanSlotsVisitsNonNullOnly(t *testing.T) {
	type obj struct {
		a objectmodel.Member
		b objectmodel.Member
	}
	var o obj
	o.a.Store(0x1234)

	base := uintptr(unsafe.Pointer(&o))
	offA := uintptr(unsafe.Pointer(&o.a)) - base
	offB := uintptr(unsafe.Pointer(&o.b)) - base

	var visited []uintptr
	ScanSlots(base, []uintptr{offA, offB}, func(slot uintptr) {
		visited = append(visited, slot)
	})
	require.Equal(t, []uintptr{base + offA}, visited)
}

func TestDispatchNoTraceVisitsNothing(t *testing.T) {
	called := false
	Dispatch(nil, KindNoTrace, 0x1, nil, func(slot uintptr) { called = true })
	require.False(t, called)
}

func TestWeakQueueDrainClearsBeforeRunning(t *testing.T) {
	q := NewWeakQueue()
	requeued := false
	q.Enqueue(0x1, func(obj uintptr) bool {
		if !requeued {
			requeued = true
			q.Enqueue(0x2, func(uintptr) bool { return true })
		}
		return false
	})

	dead := q.Drain()
	require.Equal(t, 1, dead)
	require.Equal(t, 1, q.Len()) // the requeued callback waits for the next Drain
}

func TestWeakQueueDrainUntilStable(t *testing.T) {
	q := NewWeakQueue()
	rounds := 0
	var enqueueNext func()
	enqueueNext = func() {
		q.Enqueue(0x1, func(uintptr) bool {
			rounds++
			if rounds < 3 {
				enqueueNext()
			}
			return true
		})
	}
	enqueueNext()

	q.DrainUntilStable(10)
	require.Equal(t, 3, rounds)
	require.Equal(t, 0, q.Len())
}
