package threads

// Current returns the calling goroutine's TLSData, or nil if it was
// never registered with r (spec.md §4.4's "current thread" lookup,
// keyed by goroutineID instead of a language TLS slot).
func (r *Registry) Current() *TLSData {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.threads[goroutineID()]
}

// MustCurrent is Current but panics if the calling goroutine was never
// registered, for call sites that only run on known mutator threads.
func (r *Registry) MustCurrent() *TLSData {
	tls := r.Current()
	if tls == nil {
		panic("threads: goroutine not registered with this Registry")
	}
	return tls
}
