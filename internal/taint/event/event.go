// Package event defines the closed set of trace event records.
//
// One Event struct carries every kind; the Kind field discriminates and
// the per-kind fields are documented with their validity. Consumers
// switch on Kind exhaustively. There is no open hierarchy to downcast:
// adding a kind means extending the enum and every switch over it.
package event

import (
	"strconv"

	"github.com/kolkov/tainttracker/internal/taint/basicblock"
	"github.com/kolkov/tainttracker/internal/taint/label"
	"github.com/kolkov/tainttracker/internal/taint/namedepot"
)

// Kind distinguishes the event variants.
type Kind uint8

const (
	// KindNone is the zero value and marks an unset event.
	KindNone Kind = iota

	// KindBlockEntry records control entering a basic block.
	KindBlockEntry

	// KindFunctionCall records a function being entered.
	KindFunctionCall

	// KindFunctionReturn records a function returning to its caller.
	KindFunctionReturn

	// KindTaintAccess records a taint label touched inline in the
	// thread's event sequence.
	KindTaintAccess
)

var kindNames = [...]string{
	KindNone:           "none",
	KindBlockEntry:     "block_entry",
	KindFunctionCall:   "function_call",
	KindFunctionReturn: "function_return",
	KindTaintAccess:    "taint_access",
}

// String returns the snake_case kind name used in logs and summaries.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// Ref is the index of an event within its owning stack's history arena.
//
// Refs only have meaning relative to the stack that issued them and
// double as the per-thread event sequence number: the first event a
// thread records is Ref 0, the next Ref 1, and so on.
type Ref int32

// NoRef is the recognizable invalid reference.
const NoRef Ref = -1

// Valid reports whether the ref can possibly resolve.
//
//go:nosplit
func (r Ref) Valid() bool {
	return r >= 0
}

// Event is one record in a thread's trace.
//
// Kind and the always-valid fields describe what happened; the remaining
// fields carry variant data and are meaningful only for the kinds noted.
type Event struct {
	// Kind discriminates the variant. Always valid.
	Kind Kind

	// Index is the globally unique creation index, assigned from one
	// process-wide atomic counter at push time. Indices are 1-based and
	// strictly ordered across all threads; 0 means unassigned. Always
	// valid after push.
	Index uint64

	// Prev is the event that preceded this one on the same thread at
	// push time, NoRef for a thread's first event. Always valid.
	Prev Ref

	// Func is the function this event belongs to: the entered function
	// for KindFunctionCall, the returning function for
	// KindFunctionReturn, the enclosing function otherwise. Always
	// valid.
	Func namedepot.Name

	// Block is the basic-block index. Only valid when Kind ==
	// KindBlockEntry.
	Block basicblock.BBIndex

	// Entries counts logical re-entries of this dynamic block (loop
	// back-edges onto the stack head). Starts at 0; bumped in place by
	// the owning stack. Only valid when Kind == KindBlockEntry.
	Entries uint64

	// ReturnsTo is the block-entry event control resumes into,
	// pre-resolved at return time, NoRef when the caller had no block
	// on record. Only valid when Kind == KindFunctionReturn.
	ReturnsTo Ref

	// Label is the touched taint label. Only valid when Kind ==
	// KindTaintAccess.
	Label label.Label

	// Access classifies the touch. Only valid when Kind ==
	// KindTaintAccess.
	Access label.AccessKind
}

// BB snapshots a block-entry event into a basicblock.Trace value.
//
// Only meaningful when Kind == KindBlockEntry; other kinds snapshot to a
// zero-index trace of their function.
//
//go:nosplit
func (e Event) BB() basicblock.Trace {
	return basicblock.Trace{Func: e.Func, Index: e.Block, EntryCount: e.Entries}
}

// String returns a short human-readable form for logs.
func (e Event) String() string {
	switch e.Kind {
	case KindBlockEntry:
		return e.Kind.String() + " " + e.BB().String()
	case KindFunctionCall, KindFunctionReturn:
		return e.Kind.String() + " " + e.Func.String()
	case KindTaintAccess:
		return e.Kind.String() + " label=" + strconv.FormatUint(uint64(e.Label), 10) + " " + e.Access.String()
	default:
		return e.Kind.String()
	}
}
