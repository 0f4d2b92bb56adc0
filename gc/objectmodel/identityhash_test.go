package objectmodel

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func addrOf(b []byte) uintptr { return uintptr(unsafe.Pointer(&b[0])) }

func TestIdentityHashStableBeforeMove(t *testing.T) {
	buf := make([]byte, 16)
	h := NewHeader(VTablePointer(0x8))
	a := addrOf(buf)

	first := IdentityHash(&h, a, 16)
	require.Equal(t, Hashed, h.HashState())
	second := IdentityHash(&h, a, 16)
	require.Equal(t, first, second)
}

func TestMoveObjectUnhashedIsPlainCopy(t *testing.T) {
	src := []byte{1, 2, 3, 4}
	dst := make([]byte, 4)
	h := NewHeader(VTablePointer(0x8))

	newObj, n := MoveObject(&h, addrOf(src), addrOf(dst), 4)
	require.Equal(t, addrOf(dst), newObj)
	require.Equal(t, uintptr(4), n)
	require.Equal(t, src, dst)
}

func TestMoveObjectAfterHashShiftsBodyPastLeadingHashWord(t *testing.T) {
	src := make([]byte, 16)
	for i := range src {
		src[i] = byte(i)
	}
	h := NewHeader(VTablePointer(0x8))
	srcAddr := addrOf(src)

	wantHash := IdentityHash(&h, srcAddr, 16)
	require.Equal(t, Hashed, h.HashState())

	region := make([]byte, int(hashWordSize)+16)
	regionAddr := addrOf(region)

	newObj, n := MoveObject(&h, srcAddr, regionAddr, 16)
	require.Equal(t, HashedAndMoved, h.HashState())
	require.Equal(t, regionAddr+hashWordSize, newObj, "hash word must precede the new object")
	require.Equal(t, uintptr(16)+hashWordSize, n)
	require.Equal(t, src, bytesAt(newObj, 16))

	gotHash := IdentityHash(&h, newObj, 16)
	require.Equal(t, wantHash, gotHash)
}

func TestMoveObjectHashedAndMovedCarriesLeadingHashWordForward(t *testing.T) {
	h := NewHeader(VTablePointer(0x8))

	firstRegion := make([]byte, int(hashWordSize)+16)
	firstAddr := addrOf(firstRegion)
	src := make([]byte, 16)
	for i := range src {
		src[i] = byte(i + 1)
	}
	srcAddr := addrOf(src)
	hashBefore := IdentityHash(&h, srcAddr, 16)
	obj1, _ := MoveObject(&h, srcAddr, firstAddr, 16)
	require.Equal(t, HashedAndMoved, h.HashState())

	secondRegion := make([]byte, int(hashWordSize)+16)
	secondAddr := addrOf(secondRegion)
	obj2, n := MoveObject(&h, obj1, secondAddr, 16)
	require.Equal(t, secondAddr+hashWordSize, obj2)
	require.Equal(t, uintptr(16)+hashWordSize, n)

	require.Equal(t, hashBefore, IdentityHash(&h, obj2, 16))
}

func TestBytesRequiredWhenCopied(t *testing.T) {
	h := NewHeader(VTablePointer(0x8))
	require.Equal(t, uintptr(16), BytesRequiredWhenCopied(&h, 16))
	h.TransitionHash(Unhashed, Hashed)
	require.Equal(t, uintptr(16)+hashWordSize, BytesRequiredWhenCopied(&h, 16))
}
