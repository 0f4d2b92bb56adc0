package objectmodel

import (
	"fmt"
	"sync"
	"unsafe"

	lru "github.com/hashicorp/golang-lru"
)

// vtableMagic tags every VTable corevm allocates so a corrupted or
// stray header can be detected instead of silently misinterpreted as
// a vtable pointer, grounded on
// original_source/crates/vmkit/src/objectmodel/vtable.rs's magic
// constant.
const vtableMagic uint64 = 0xff57ab1eff57ab1e

// TraceFunc scans an object's managed references, invoked by the
// bound collector during marking; see gc/scanning.
type TraceFunc func(obj uintptr, visitor func(slot uintptr))

// VTable describes one managed type: its size, how to trace it, and
// an optional finalizer. VTablePool hands out *VTable values that are
// never moved or freed for the lifetime of the process, so a
// VTablePointer derived from one is stable to store in an object
// header.
type VTable struct {
	Magic     uint64
	TypeName  string
	Size      uintptr
	Trace     TraceFunc
	Finalizer func(obj uintptr)
}

// VTablePointer is the address of a *VTable, stored in an object
// header's high bits (see header.go). It is a distinct type from
// uintptr so a header accessor can't be handed a raw data pointer by
// mistake.
type VTablePointer uintptr

// Valid reports whether p appears to reference a genuine VTable by
// checking the magic constant, catching the kind of header corruption
// a conservative GC audit would want to flag.
func (p VTablePointer) Valid() bool {
	if p == 0 {
		return false
	}
	vt := (*VTable)(unsafe.Pointer(uintptr(p)))
	return vt.Magic == vtableMagic
}

func (p VTablePointer) Deref() *VTable {
	return (*VTable)(unsafe.Pointer(uintptr(p)))
}

// VTablePool owns the lifetime of every VTable corevm creates. Types
// are registered once (typically at class-load time) and never
// unregistered, since spec.md's object model has no notion of
// unloading a type.
type VTablePool struct {
	mu      sync.Mutex
	entries []*VTable
}

func NewVTablePool() *VTablePool {
	return &VTablePool{}
}

// Register allocates a stable VTable for typeName and returns a
// pointer to it suitable for storing in object headers.
func (p *VTablePool) Register(typeName string, size uintptr, trace TraceFunc) VTablePointer {
	vt := &VTable{Magic: vtableMagic, TypeName: typeName, Size: size, Trace: trace}
	p.mu.Lock()
	p.entries = append(p.entries, vt)
	p.mu.Unlock()
	return VTablePointer(uintptr(unsafe.Pointer(vt)))
}

// VTableTable caches the mapping from a type's name to its
// VTablePointer, so hot allocation sites (which identify the type
// they're allocating by name, e.g. from a runtime reflection call)
// don't walk VTablePool's slice on every allocation. Grounded on the
// reference runtime's own per-type vtable cache, backed here by
// hashicorp/golang-lru the way the teacher's common/lru package wraps
// the same library for its blob cache.
type VTableTable struct {
	mu    sync.RWMutex
	cache *lru.Cache
}

func NewVTableTable(size int) (*VTableTable, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("objectmodel: creating vtable cache: %w", err)
	}
	return &VTableTable{cache: c}, nil
}

func (t *VTableTable) Lookup(typeName string) (VTablePointer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.cache.Get(typeName)
	if !ok {
		return 0, false
	}
	return v.(VTablePointer), true
}

func (t *VTableTable) Insert(typeName string, ptr VTablePointer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.Add(typeName, ptr)
}
