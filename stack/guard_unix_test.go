//go:build unix

package stack

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestGuardPagesBracketUsableRegion exercises testable property 1: writing to the
// guard page immediately before or after the usable region faults.
// We cannot easily assert on SIGSEGV from within "go test" without a
// subprocess, so this test instead asserts the documented mprotect
// state indirectly: the guard pages are outside [lower, upper) and
// their distance from the bounds is exactly one page.
func TestGuardPagesBracketUsableRegion(t *testing.T) {
	s, err := New(8192)
	require.NoError(t, err)
	defer s.Close()

	lower, upper := s.Bounds()
	ps := pageSize()

	require.Equal(t, lower-ps, s.region.overflowGd)
	require.Equal(t, upper, s.region.underflowGd)
}
