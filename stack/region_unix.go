//go:build unix

package stack

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

func uintptrOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}

// region is the guarded mmap'd memory backing a Stack:
// [overflow-guard page | usable | underflow-guard page].
type region struct {
	mapping     []byte
	pageSize    uintptr
	usable      uintptr
	lower       uintptr
	upper       uintptr
	overflowGd  uintptr
	underflowGd uintptr
}

func pageSize() uintptr {
	return uintptr(unix.Getpagesize())
}

func alignUp(n, align uintptr) uintptr {
	return (n + align - 1) &^ (align - 1)
}

func newRegion(usable uintptr) (*region, error) {
	ps := pageSize()
	usable = alignUp(usable, ps)
	total := usable + 2*ps

	mapping, err := unix.Mmap(-1, 0, int(total), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes: %w", total, err)
	}

	base := uintptrOf(mapping)
	overflowGuard := base
	lower := base + ps
	upper := lower + usable
	underflowGuard := upper

	if err := unix.Mprotect(mapping[0:ps], unix.PROT_NONE); err != nil {
		unix.Munmap(mapping)
		return nil, fmt.Errorf("mprotect overflow guard: %w", err)
	}
	if err := unix.Mprotect(mapping[ps+int(usable):], unix.PROT_NONE); err != nil {
		unix.Munmap(mapping)
		return nil, fmt.Errorf("mprotect underflow guard: %w", err)
	}

	return &region{
		mapping:     mapping,
		pageSize:    ps,
		usable:      usable,
		lower:       lower,
		upper:       upper,
		overflowGd:  overflowGuard,
		underflowGd: underflowGuard,
	}, nil
}

func (r *region) close() error {
	return unix.Munmap(r.mapping)
}
