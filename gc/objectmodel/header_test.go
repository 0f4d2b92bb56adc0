package objectmodel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderVTableRoundTrip(t *testing.T) {
	h := NewHeader(VTablePointer(0x1000))
	require.Equal(t, VTablePointer(0x1000), h.VTable())
	require.Equal(t, Unhashed, h.HashState())
	require.False(t, h.Marked())
}

func TestHeaderSetVTablePreservesFlags(t *testing.T) {
	h := NewHeader(VTablePointer(0x1000))
	h.SetMarked(true)
	require.True(t, h.TransitionHash(Unhashed, Hashed))

	h.SetVTable(VTablePointer(0x2000))
	require.Equal(t, VTablePointer(0x2000), h.VTable())
	require.True(t, h.Marked())
	require.Equal(t, Hashed, h.HashState())
}

func TestHashStateTransitionsAreMonotonic(t *testing.T) {
	h := NewHeader(VTablePointer(0x1000))
	require.True(t, h.TransitionHash(Unhashed, Hashed))
	require.False(t, h.TransitionHash(Unhashed, Hashed))
	require.True(t, h.TransitionHash(Hashed, HashedAndMoved))
}

func TestMarkBitToggle(t *testing.T) {
	h := NewHeader(VTablePointer(0x8))
	h.SetMarked(true)
	require.True(t, h.Marked())
	h.SetMarked(false)
	require.False(t, h.Marked())
}
