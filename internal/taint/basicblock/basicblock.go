// Package basicblock implements block identity value types for the tracer.
//
// A basic block is identified statically by (function name, block index)
// and dynamically by an additional entry count distinguishing loop
// iterations. BlockID packs the static identity into a single 64-bit
// value:
// - Top 32 bits: interned function name handle
// - Bottom 32 bits: block index within the function
//
// This encoding keeps block identity comparable with a single integer
// compare and usable as a map key without allocation.
package basicblock

import (
	"github.com/kolkov/tainttracker/internal/taint/namedepot"
)

// BBIndex is the index of a basic block within its function, assigned in
// instrumentation order starting at 0.
type BBIndex uint32

// BlockID is a 64-bit packed static block identity.
// Layout: [Func:32][Index:32]
//
// Example: 0x0000000500000003 is block 3 of the function with handle 5.
type BlockID uint64

const (
	// IndexBits is the number of bits allocated for the block index.
	IndexBits = 32

	// IndexMask is the bitmask for extracting the block index.
	IndexMask = (1 << IndexBits) - 1
)

// NewBlockID packs a function handle and block index into a BlockID.
//
//go:nosplit
func NewBlockID(fn namedepot.Name, idx BBIndex) BlockID {
	return BlockID(uint64(fn)<<IndexBits | uint64(idx))
}

// Func extracts the function handle from a BlockID.
//
//go:nosplit
func (b BlockID) Func() namedepot.Name {
	return namedepot.Name(b >> IndexBits)
}

// Index extracts the block index from a BlockID.
//
//go:nosplit
func (b BlockID) Index() BBIndex {
	return BBIndex(uint64(b) & IndexMask)
}

// String returns a human-readable form "function@index".
//
// Only used in logs and summaries, not on the recording path.
func (b BlockID) String() string {
	return b.Func().String() + "@" + itoa(uint64(b.Index()))
}

// BlockKind is a bit-flag classification of a basic block, assigned by the
// instrumenter from the surrounding syntax.
type BlockKind uint8

const (
	// KindUnknown marks blocks the instrumenter could not classify.
	KindUnknown BlockKind = 0

	// KindStandard marks straight-line blocks.
	KindStandard BlockKind = 1

	// KindConditional marks blocks guarded by a branch.
	KindConditional BlockKind = 2

	// KindLoopEntry marks the first block of a loop body.
	KindLoopEntry BlockKind = 4

	// KindLoopExit marks the block control reaches when a loop ends.
	KindLoopExit BlockKind = 8

	// KindFuncEntry marks the first block of a function body.
	KindFuncEntry BlockKind = 16

	// KindFuncExit marks a block ending in a return.
	KindFuncExit BlockKind = 32
)

// Is reports whether all flags in k are set.
//
//go:nosplit
func (b BlockKind) Is(k BlockKind) bool {
	return b&k == k
}

// String returns a human-readable flag list, e.g. "conditional|loop_entry".
func (b BlockKind) String() string {
	if b == KindUnknown {
		return "unknown"
	}

	var s string
	appendFlag := func(k BlockKind, name string) {
		if b.Is(k) {
			if s != "" {
				s += "|"
			}
			s += name
		}
	}
	appendFlag(KindStandard, "standard")
	appendFlag(KindConditional, "conditional")
	appendFlag(KindLoopEntry, "loop_entry")
	appendFlag(KindLoopExit, "loop_exit")
	appendFlag(KindFuncEntry, "func_entry")
	appendFlag(KindFuncExit, "func_exit")
	return s
}

// Trace is the value snapshot of one dynamic basic-block visit: the static
// identity plus the entry count distinguishing loop iterations.
//
// Trace values are plain data. Equality covers all three fields; ordering
// is lexicographic by function name string, then block index, then entry
// count, so traces sort into source-meaningful groups.
type Trace struct {
	Func       namedepot.Name
	Index      BBIndex
	EntryCount uint64
}

// Equal reports whether two traces denote the same dynamic visit.
//
//go:nosplit
func (t Trace) Equal(other Trace) bool {
	return t == other
}

// Compare orders traces by function name, then index, then entry count.
// Returns -1, 0, or 1 in the manner of strings.Compare.
func (t Trace) Compare(other Trace) int {
	if t.Func != other.Func {
		a, b := t.Func.String(), other.Func.String()
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		// Distinct handles with equal strings cannot happen for interned
		// names; fall through to the index tiebreak anyway.
	}
	if t.Index != other.Index {
		if t.Index < other.Index {
			return -1
		}
		return 1
	}
	if t.EntryCount != other.EntryCount {
		if t.EntryCount < other.EntryCount {
			return -1
		}
		return 1
	}
	return 0
}

// Less reports whether t orders before other.
func (t Trace) Less(other Trace) bool {
	return t.Compare(other) < 0
}

// Hash returns a hash of the block index and entry count.
//
// The function name is NOT mixed in: same-index blocks of different
// functions collide. Downstream consumers dedup on full equality and
// treat the hash as advisory, which keeps it a two-shift operation.
//
//go:nosplit
func (t Trace) Hash() uint64 {
	return uint64(t.Index)<<1 ^ t.EntryCount<<1
}

// ID returns the packed static identity, dropping the entry count.
//
//go:nosplit
func (t Trace) ID() BlockID {
	return NewBlockID(t.Func, t.Index)
}

// String returns a human-readable form "function@index#entryCount".
func (t Trace) String() string {
	return t.Func.String() + "@" + itoa(uint64(t.Index)) + "#" + itoa(t.EntryCount)
}

// itoa converts an integer to string without fmt import.
// Simple implementation for debugging output only.
func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}

	tmp := n
	digits := 0
	for tmp > 0 {
		digits++
		tmp /= 10
	}

	buf := make([]byte, digits)
	for i := digits - 1; i >= 0; i-- {
		buf[i] = byte('0' + n%10)
		n /= 10
	}

	return string(buf)
}
