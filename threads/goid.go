package threads

import (
	"runtime"
	"strconv"
)

// goroutineID returns a numeric identifier for the calling goroutine.
//
// Go intentionally exposes no public goroutine-local storage facility;
// the reference runtime's single machine-word TLS slot per OS thread
// (spec.md §9, design note "Thread-local via language facility") is
// instead realized here as a goroutine-id-keyed registry (see
// currentthread.go): we recover the id the same way the broader Go
// ecosystem does when it needs one (e.g. the "goroutineid" style
// helpers used for request-scoped logging), by parsing the header line
// of a runtime.Stack dump. This is deliberately the only place in the
// module that resorts to that trick; everywhere else a *TLSData is
// threaded explicitly.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return parseGoroutineID(buf[:n])
}

func parseGoroutineID(b []byte) uint64 {
	const prefix = "goroutine "
	if len(b) < len(prefix) || string(b[:len(prefix)]) != prefix {
		return 0
	}
	b = b[len(prefix):]
	i := 0
	for i < len(b) && b[i] >= '0' && b[i] <= '9' {
		i++
	}
	id, err := strconv.ParseUint(string(b[:i]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
