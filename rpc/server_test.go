package rpc

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"

	"github.com/CortexFoundation/corevm/gc"
	"github.com/CortexFoundation/corevm/runtime"
	"github.com/CortexFoundation/corevm/threads"
)

type noopMutator struct{ next uintptr }

func (m *noopMutator) AllocateDefault(size, align uintptr) (uintptr, error) {
	return m.AllocateSlow(size, align, gc.SemanticsDefault)
}
func (m *noopMutator) Allocate(size, align uintptr, semantics gc.AllocationSemantics) (uintptr, error) {
	return m.AllocateSlow(size, align, semantics)
}
func (m *noopMutator) AllocateSlow(size, align uintptr, semantics gc.AllocationSemantics) (uintptr, error) {
	m.next += size
	return m.next, nil
}
func (m *noopMutator) PostAlloc(obj uintptr, size uintptr, semantics gc.AllocationSemantics) {}
func (m *noopMutator) WriteBarrierSlow(src, slot, target uintptr)                            {}
func (m *noopMutator) AllocatorSelector(semantics gc.AllocationSemantics) int                { return 0 }
func (m *noopMutator) Bind()                                                                 {}
func (m *noopMutator) Destroy()                                                              {}

type noopPlan struct{}

func (noopPlan) Constraints() gc.PlanConstraints { return gc.PlanConstraints{} }
func (noopPlan) HandleUserCollectionRequest(ctx context.Context) error { return nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	vm, err := runtime.New(runtime.Config{
		Plan:           noopPlan{},
		NewMutator:     func(tls *threads.TLSData) gc.Mutator { return &noopMutator{} },
		TLABSlabSize:   256,
		HeapBase:       0x1000,
		HeapSize:       1 << 16,
		RememberedMax:  1 << 14,
		RememberedN:    100,
		VTableCacheLen: 8,
	})
	require.NoError(t, err)
	return NewServer(vm, ":0")
}

func TestHandleThreadsReportsCount(t *testing.T) {
	s := newTestServer(t)
	s.vm.ThreadStart()

	req := httptest.NewRequest("GET", "/threads", nil)
	rec := httptest.NewRecorder()
	s.handleThreads(rec, req, httprouter.Params{})

	var resp threadsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
}

func TestHandleRequestGC(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("POST", "/gc", nil)
	rec := httptest.NewRecorder()
	s.handleRequestGC(rec, req, httprouter.Params{})
	require.Equal(t, 202, rec.Code)
}
