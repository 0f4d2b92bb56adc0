package stack

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRoundsUpAndBrackets(t *testing.T) {
	s, err := New(1)
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, StateNew, s.State())
	lower, upper := s.Bounds()
	require.True(t, upper > lower)
	require.GreaterOrEqual(t, s.Size(), uintptr(1))
}

func TestDefaultSize(t *testing.T) {
	s, err := New(0)
	require.NoError(t, err)
	defer s.Close()
	require.Equal(t, uintptr(DefaultSize), s.Size())
}

func TestInitializeMarksReady(t *testing.T) {
	s, err := New(0)
	require.NoError(t, err)
	defer s.Close()

	s.Initialize(0xdead, 0xbeef)
	require.Equal(t, StateReady, s.State())
	require.NotNil(t, s.InitialTop())
}

func TestCloseActiveStackRejected(t *testing.T) {
	s, err := New(0)
	require.NoError(t, err)
	s.SetState(StateActive)
	require.Error(t, s.Close())
	s.SetState(StateDead)
	require.NoError(t, s.Close())
}

func TestFromNativeIsNotClosable(t *testing.T) {
	s := FromNative()
	require.True(t, s.IsNative())
	require.NoError(t, s.Close())
}
