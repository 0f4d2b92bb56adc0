package fiber

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestFibonacciCoroutine exercises scenario S1: a coroutine that
// repeatedly suspends to hand back the next Fibonacci number and
// resumes with no meaningful input, finally returning a sentinel.
func TestFibonacciCoroutine(t *testing.T) {
	f, err := New(0, func(co *Coroutine[struct{}, int, string], _ struct{}) string {
		a, b := 0, 1
		for i := 0; i < 5; i++ {
			co.Suspend(a)
			a, b = b, a+b
		}
		return "done"
	})
	require.NoError(t, err)
	defer f.Close()

	var got []int
	out := f.Resume(struct{}{})
	for !out.Done {
		got = append(got, out.Yield)
		out = f.Resume(struct{}{})
	}
	require.Equal(t, []int{0, 1, 1, 2, 3}, got)
	require.Equal(t, "done", out.Return)
	require.Equal(t, StatusDone, f.Status())
}

// TestKillUnwindsSuspendedFiber exercises scenario S5: killing a
// suspended coroutine unwinds it via the forced-unwind sentinel
// instead of leaking the goroutine.
func TestKillUnwindsSuspendedFiber(t *testing.T) {
	cleanedUp := false
	f, err := New(0, func(co *Coroutine[struct{}, int, int], _ struct{}) int {
		defer func() { cleanedUp = true }()
		co.Suspend(1)
		return 0
	})
	require.NoError(t, err)

	out := f.Resume(struct{}{})
	require.False(t, out.Done)
	require.Equal(t, StatusSuspended, f.Status())

	f.Kill()
	require.True(t, cleanedUp)
	require.Equal(t, StatusDone, f.Status())
	require.NoError(t, f.Close())
}

// TestResumeAfterDonePanics matches the "resuming a dead coroutine is
// a programmer error" contract.
func TestResumeAfterDonePanics(t *testing.T) {
	f, err := New(0, func(co *Coroutine[int, int, int], first int) int {
		return first
	})
	require.NoError(t, err)
	defer f.Close()

	out := f.Resume(7)
	require.True(t, out.Done)
	require.Equal(t, 7, out.Return)

	require.Panics(t, func() { f.Resume(1) })
}

// TestPanicInsideFiberPropagatesToResumer ensures a genuine fault (not
// the forced-unwind sentinel) crosses back to whichever goroutine is
// driving the fiber, rather than being swallowed.
func TestPanicInsideFiberPropagatesToResumer(t *testing.T) {
	f, err := New(0, func(co *Coroutine[struct{}, int, int], _ struct{}) int {
		panic("boom")
	})
	require.NoError(t, err)

	require.PanicsWithValue(t, "boom", func() { f.Resume(struct{}{}) })
}
