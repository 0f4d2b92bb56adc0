package tlab

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CortexFoundation/corevm/gc"
)

var errFake = errors.New("fake alloc failure")

type fakeMutator struct {
	next    uintptr
	fail    bool
	posted  []uintptr
}

func (f *fakeMutator) AllocateDefault(size, align uintptr) (uintptr, error) {
	return f.AllocateSlow(size, align, gc.SemanticsDefault)
}

func (f *fakeMutator) Allocate(size, align uintptr, semantics gc.AllocationSemantics) (uintptr, error) {
	return f.AllocateSlow(size, align, semantics)
}

func (f *fakeMutator) AllocateSlow(size, align uintptr, semantics gc.AllocationSemantics) (uintptr, error) {
	if f.fail {
		return 0, errFake
	}
	addr := (f.next + align - 1) &^ (align - 1)
	f.next = addr + size
	return addr, nil
}

func (f *fakeMutator) PostAlloc(obj uintptr, size uintptr, semantics gc.AllocationSemantics) {
	f.posted = append(f.posted, obj)
}

func (f *fakeMutator) WriteBarrierSlow(src, slot, target uintptr)                     {}
func (f *fakeMutator) AllocatorSelector(semantics gc.AllocationSemantics) int         { return 0 }
func (f *fakeMutator) Bind()                                                         {}
func (f *fakeMutator) Destroy()                                                      {}

func TestTLABBumpsWithinSlab(t *testing.T) {
	m := &fakeMutator{next: 0x1000}
	tl := New(m, 256)

	a, err := tl.Allocate(16, 8)
	require.NoError(t, err)
	b, err := tl.Allocate(16, 8)
	require.NoError(t, err)
	require.Equal(t, a+16, b)
}

func TestTLABRefillsOnExhaustion(t *testing.T) {
	m := &fakeMutator{next: 0x1000}
	tl := New(m, 32)

	_, err := tl.Allocate(24, 8)
	require.NoError(t, err)
	_, err = tl.Allocate(24, 8)
	require.NoError(t, err)

	stats := tl.Snapshot()
	require.GreaterOrEqual(t, stats.Refills, uint64(1))
}

func TestTLABFlushReportsRemainder(t *testing.T) {
	m := &fakeMutator{next: 0x1000}
	tl := New(m, 256)

	_, err := tl.Allocate(16, 8)
	require.NoError(t, err)
	tl.Flush()
	require.Len(t, m.posted, 1)

	stats := tl.Snapshot()
	require.Equal(t, uintptr(0), stats.Remaining)
}
