package objectmodel

import "unsafe"

// hashWordSize is the size of the out-of-line identity-hash slot: one
// machine word, matching original_source's `OBJECT_HASH_SIZE =
// size_of::<usize>()` rather than a fixed-width integer.
const hashWordSize = unsafe.Sizeof(uintptr(0))

func bytesAt(addr uintptr, n uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(n))
}

func readWord(addr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(addr))
}

func writeWord(addr uintptr, v uintptr) {
	*(*uintptr)(unsafe.Pointer(addr)) = v
}

// hashFromAddress derives a stable-while-unmoved identity hash from an
// object's address: the address divided by the word size (a right
// shift by log2 of it), dropping the always-zero alignment bits.
// HashedAndMoved objects carry their hash explicitly rather than ever
// recomputing it.
func hashFromAddress(addr uintptr) uint32 {
	return uint32(addr / hashWordSize)
}

// IdentityHash returns obj's identity hash, transitioning its header's
// HashState forward on first use per spec.md §4.8. size is the
// object's un-extended payload size, unused once the object has
// reached HashedAndMoved: the hash word there is found relative to
// obj's own address, not size.
func IdentityHash(h *Header, obj uintptr, size uintptr) uint32 {
	switch h.HashState() {
	case Unhashed:
		h.TransitionHash(Unhashed, Hashed)
		return hashFromAddress(obj)
	case Hashed:
		return hashFromAddress(obj)
	default: // HashedAndMoved: the hash word immediately precedes obj
		return uint32(readWord(obj - hashWordSize))
	}
}

// BytesRequiredWhenCopied returns how many bytes a copying collector
// must reserve for obj at its new location: size, plus one hash word
// if obj has already had its identity hash taken (so the hash has a
// home once the object's address, and therefore its address-derived
// hash, changes).
func BytesRequiredWhenCopied(h *Header, size uintptr) uintptr {
	switch h.HashState() {
	case Hashed, HashedAndMoved:
		return size + hashWordSize
	default:
		return size
	}
}

// MoveObject implements the copy-with-hash algorithm a moving
// collector calls in place of a bare memcpy (spec.md §4.8's four-step
// move_object). newRegion is the raw start of the region the collector
// reserved for this copy, sized per BytesRequiredWhenCopied; the
// returned newObj is where the object's header now actually lives:
// newRegion itself for an Unhashed object, and newRegion plus one word
// for a hashed one, whose hash word occupies the region's first word.
func MoveObject(h *Header, oldAddr, newRegion uintptr, size uintptr) (newObj uintptr, bytesWritten uintptr) {
	switch h.HashState() {
	case Unhashed:
		copy(bytesAt(newRegion, size), bytesAt(oldAddr, size))
		return newRegion, size

	case Hashed:
		// The hash word now lives before the new object's header: shift
		// the target address up by one word and copy only the body.
		newObj = newRegion + hashWordSize
		copy(bytesAt(newObj, size), bytesAt(oldAddr, size))
		writeWord(newRegion, uintptr(hashFromAddress(oldAddr)))
		h.TransitionHash(Hashed, HashedAndMoved)
		return newObj, size + hashWordSize

	default: // HashedAndMoved: source already carries a hash word before it
		total := size + hashWordSize
		copy(bytesAt(newRegion, total), bytesAt(oldAddr-hashWordSize, total))
		return newRegion + hashWordSize, total
	}
}
