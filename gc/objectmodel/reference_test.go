package objectmodel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemberWeaknessTags(t *testing.T) {
	var m Member
	var w WeakMember
	var u UntracedMember

	require.Equal(t, Strong, m.Weakness())
	require.Equal(t, Weak, w.Weakness())
	require.Equal(t, Untraced, u.Weakness())
}

func TestBasicMemberLoadStore(t *testing.T) {
	var m Member
	require.True(t, m.IsNull())

	m.Store(0x1000)
	require.False(t, m.IsNull())
	require.Equal(t, uintptr(0x1000), m.Load())

	require.True(t, m.CompareAndSwap(0x1000, 0x2000))
	require.Equal(t, uintptr(0x2000), m.Load())
	require.False(t, m.CompareAndSwap(0x1000, 0x3000))
}
