// Package label defines the taint-label value types shared across the tracer.
//
// A Label names one taint source (an input byte, a file region, a network
// read). Labels are dense 32-bit values handed out by the taint-source
// manager of the embedding runtime; label 0 is reserved for untainted data
// and never appears in last-usage maps.
package label

import "strings"

// Label identifies a single taint source.
//
// The zero value Clean marks untainted data.
type Label uint32

// Clean is the reserved label for untainted data.
const Clean Label = 0

// Tainted reports whether the label names a real taint source.
//
//go:nosplit
func (l Label) Tainted() bool {
	return l != Clean
}

// AccessKind classifies how tainted bytes were touched at an access site.
//
// Kinds are bit flags and combine with bitwise OR: a byte that feeds a
// comparison and is also read plainly carries AccessCmp|AccessRead.
type AccessKind uint8

const (
	// AccessUnknown is recorded when the instrumentation cannot classify the access.
	AccessUnknown AccessKind = 0

	// AccessInput marks a byte read directly from a taint source.
	AccessInput AccessKind = 1

	// AccessCmp marks a byte that influenced a comparison operand.
	AccessCmp AccessKind = 2

	// AccessRead marks a plain read of a tainted byte.
	AccessRead AccessKind = 4
)

// Has reports whether all flags in k are set.
//
//go:nosplit
func (a AccessKind) Has(k AccessKind) bool {
	return a&k == k
}

// String returns a human-readable flag list, e.g. "input|cmp".
//
// Only used in logs and summaries, not on the recording path.
func (a AccessKind) String() string {
	if a == AccessUnknown {
		return "unknown"
	}

	parts := make([]string, 0, 3)
	if a.Has(AccessInput) {
		parts = append(parts, "input")
	}
	if a.Has(AccessCmp) {
		parts = append(parts, "cmp")
	}
	if a.Has(AccessRead) {
		parts = append(parts, "read")
	}
	return strings.Join(parts, "|")
}
