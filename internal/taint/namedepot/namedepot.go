// Package namedepot implements process-wide function-name interning.
//
// The tracer records millions of events that all refer to a small set of
// function names. Storing the string in every event would waste memory and
// make comparisons cost a string walk, so names are interned once into a
// global depot and handed around as dense 32-bit handles:
//
//   - Name values compare with == (identity comparison of interned names).
//   - The dense index doubles as the function axis of packed block IDs.
//   - Reverse lookup recovers the string for ordering, logs and summaries.
//
// Design:
//   - Append-only string table guarded by an RWMutex
//   - Read-locked lookup fast path, write-locked insert slow path
//   - Index 0 reserved for NoName (the empty name)
//
// Performance:
//   - Intern (hit): one RLock + map lookup, ~30ns
//   - Intern (miss): one Lock + map insert + append, ~150ns
//   - String: one RLock + slice index, ~20ns
//
// Instrumented code is expected to intern each function name once (a
// hoisted package-level var) and pass the handle to the recording entry
// points, keeping interning off the per-event path entirely.
package namedepot

import "sync"

// Name is a dense handle to an interned function name.
//
// Handles are process-wide: two Name values are equal exactly when they
// were interned from equal strings. The zero value is NoName.
type Name uint32

// NoName is the reserved handle for "no function", interned from "".
const NoName Name = 0

// depot is the global interning store.
//
// indexOf maps a name to its handle; names is the reverse table indexed by
// handle. Both grow together under mu and entries are never removed
// outside Reset.
var depot = struct {
	mu      sync.RWMutex
	indexOf map[string]Name
	names   []string
}{
	indexOf: map[string]Name{"": NoName},
	names:   []string{""},
}

// Intern returns the handle for s, allocating the next dense index on
// first sight.
//
// Idempotent: equal strings always yield the same handle. The empty
// string yields NoName.
//
// Thread Safety: safe for concurrent calls; concurrent first-time interns
// of the same string race to insert and all return the winner's handle.
func Intern(s string) Name {
	if s == "" {
		return NoName
	}

	depot.mu.RLock()
	n, ok := depot.indexOf[s]
	depot.mu.RUnlock()
	if ok {
		return n
	}

	depot.mu.Lock()
	defer depot.mu.Unlock()

	// Double-check: another goroutine may have inserted between the
	// RUnlock above and taking the write lock.
	if n, ok := depot.indexOf[s]; ok {
		return n
	}

	n = Name(len(depot.names))
	depot.indexOf[s] = n
	depot.names = append(depot.names, s)
	return n
}

// Lookup returns the handle for s without interning it.
//
// Returns (NoName, false) when s has never been interned.
func Lookup(s string) (Name, bool) {
	if s == "" {
		return NoName, true
	}

	depot.mu.RLock()
	defer depot.mu.RUnlock()

	n, ok := depot.indexOf[s]
	return n, ok
}

// String returns the interned string for the handle.
//
// NoName and handles never issued by Intern yield "".
func (n Name) String() string {
	depot.mu.RLock()
	defer depot.mu.RUnlock()

	if int(n) >= len(depot.names) {
		return ""
	}
	return depot.names[n]
}

// Valid reports whether the handle was issued by Intern (or is NoName).
func (n Name) Valid() bool {
	depot.mu.RLock()
	defer depot.mu.RUnlock()

	return int(n) < len(depot.names)
}

// Count returns the number of interned names, excluding NoName.
func Count() int {
	depot.mu.RLock()
	defer depot.mu.RUnlock()

	return len(depot.names) - 1
}

// Stats returns the number of interned names and the approximate memory
// held by the depot in bytes.
//
// Do not call on the recording path: O(N) over the string table.
func Stats() (names int, totalBytes int64) {
	depot.mu.RLock()
	defer depot.mu.RUnlock()

	names = len(depot.names) - 1
	for _, s := range depot.names {
		// String bytes plus map entry and slice slot overhead.
		totalBytes += int64(len(s)) + 48
	}
	return names, totalBytes
}

// Reset clears the depot (for testing).
//
// Handles issued before Reset dangle: String on them returns "". Only use
// in single-threaded test setup/teardown.
func Reset() {
	depot.mu.Lock()
	defer depot.mu.Unlock()

	depot.indexOf = map[string]Name{"": NoName}
	depot.names = []string{""}
}
