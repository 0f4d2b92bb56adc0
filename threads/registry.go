package threads

import (
	"sync"

	"golang.org/x/sync/errgroup"
)

// Registry tracks every live thread's TLSData and drives the
// stop-the-world barrier used for full collections and other
// whole-heap operations (spec.md §4.5, §4.6).
type Registry struct {
	mu      sync.Mutex
	threads map[uint64]*TLSData // keyed by goroutineID
	drained sync.Cond
}

func NewRegistry() *Registry {
	r := &Registry{threads: make(map[uint64]*TLSData)}
	r.drained = *sync.NewCond(&r.mu)
	return r
}

// AddThread registers the calling goroutine's TLSData and transitions
// it from New to Running.
func (r *Registry) AddThread(tls *TLSData) {
	tls.registry = r
	r.mu.Lock()
	r.threads[goroutineID()] = tls
	r.mu.Unlock()
	tls.setState(StateRunning)
}

// AddMainThread is AddThread for the process's initial goroutine, kept
// as a distinct entry point since the reference runtime distinguishes
// the main thread's registration from worker registration.
func (r *Registry) AddMainThread(tls *TLSData) { r.AddThread(tls) }

// RemoveCurrentThread unregisters the calling goroutine's thread,
// marking it Terminated first so a concurrent stop-the-world does not
// wait on it forever.
func (r *Registry) RemoveCurrentThread() {
	id := goroutineID()
	r.mu.Lock()
	tls, ok := r.threads[id]
	if ok {
		tls.setState(StateTerminated)
		delete(r.threads, id)
	}
	r.drained.Broadcast()
	r.mu.Unlock()

	if ok {
		// Wake anything parked in BlockSync waiting for this thread's
		// adapter to become blocked; it never will now.
		tls.blockMu.Lock()
		tls.blockCond.Broadcast()
		tls.blockMu.Unlock()
	}
}

func (r *Registry) snapshot() []*TLSData {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*TLSData, 0, len(r.threads))
	for _, t := range r.threads {
		out = append(out, t)
	}
	return out
}

// Barrier posts a block request to every registered thread through its
// GC adapter, waits for each to acknowledge, runs fn while every
// thread is parked, then withdraws the requests so every thread
// resumes (spec.md §4.5's stop-the-world sequence).
func (r *Registry) Barrier(fn func()) error {
	live := r.snapshot()

	var g errgroup.Group
	for _, t := range live {
		t := t
		g.Go(func() error {
			BlockSync(t, t.GCAdapter())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fn()

	for _, t := range live {
		Unblock(t, t.GCAdapter())
	}
	return nil
}

// JoinAll waits for every currently registered thread to deregister,
// used by an embedder shutting the runtime down cleanly.
func (r *Registry) JoinAll() {
	r.mu.Lock()
	for len(r.threads) > 0 {
		r.drained.Wait()
	}
	r.mu.Unlock()
}

// Count returns the number of currently registered threads.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.threads)
}
