package objectmodel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVTablePoolRegisterValid(t *testing.T) {
	pool := NewVTablePool()
	ptr := pool.Register("corevm.TestType", 32, nil)
	require.True(t, ptr.Valid())
	require.Equal(t, "corevm.TestType", ptr.Deref().TypeName)
}

func TestVTablePointerZeroIsInvalid(t *testing.T) {
	var ptr VTablePointer
	require.False(t, ptr.Valid())
}

func TestVTableTableCache(t *testing.T) {
	tbl, err := NewVTableTable(16)
	require.NoError(t, err)

	_, ok := tbl.Lookup("missing")
	require.False(t, ok)

	tbl.Insert("corevm.TestType", VTablePointer(0x4000))
	got, ok := tbl.Lookup("corevm.TestType")
	require.True(t, ok)
	require.Equal(t, VTablePointer(0x4000), got)
}
