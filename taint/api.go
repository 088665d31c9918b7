// Package taint provides the public API for the execution-trace core.
//
// See doc.go for detailed documentation and examples.
package taint

import (
	"github.com/google/uuid"

	"github.com/kolkov/tainttracker/internal/taint/api"
	"github.com/kolkov/tainttracker/internal/taint/basicblock"
	"github.com/kolkov/tainttracker/internal/taint/callgraph"
	"github.com/kolkov/tainttracker/internal/taint/config"
	"github.com/kolkov/tainttracker/internal/taint/event"
	"github.com/kolkov/tainttracker/internal/taint/label"
	"github.com/kolkov/tainttracker/internal/taint/namedepot"
	"github.com/kolkov/tainttracker/internal/taint/tracer"
)

// Re-exported types. Instrumented code and downstream consumers only
// need these to drive the entry points and read the query surface.
type (
	// Name is a dense handle to an interned function name.
	Name = namedepot.Name

	// BBIndex is the index of a basic block within its function.
	BBIndex = basicblock.BBIndex

	// BlockTrace is the value snapshot of one dynamic block visit.
	BlockTrace = basicblock.Trace

	// Label identifies a single taint source.
	Label = label.Label

	// AccessKind classifies how tainted bytes were touched.
	AccessKind = label.AccessKind

	// Event is one record in a goroutine's trace.
	Event = event.Event

	// EventRef is a cross-goroutine event reference.
	EventRef = tracer.EventRef

	// ThreadID identifies a recording goroutine.
	ThreadID = tracer.ThreadID

	// EdgeCount is one observed call-graph edge with its hit count.
	EdgeCount = callgraph.EdgeCount

	// Config is the runtime configuration.
	Config = config.Config
)

// Re-exported constants.
const (
	// NoName is the handle for "no function".
	NoName = namedepot.NoName

	// Clean is the reserved label for untainted data.
	Clean = label.Clean

	// AccessInput marks a byte read directly from a taint source.
	AccessInput = label.AccessInput

	// AccessCmp marks a byte that influenced a comparison operand.
	AccessCmp = label.AccessCmp

	// AccessRead marks a plain read of a tainted byte.
	AccessRead = label.AccessRead
)

// Init initializes the tracer runtime from the environment.
//
// The tainttracker tool inserts this call at the beginning of main. For
// manual instrumentation, call it at program startup:
//
//	func main() {
//		taint.Init()
//		defer taint.Fini()
//		// ... rest of program
//	}
func Init() {
	api.Init()
}

// InitWithConfig initializes the tracer runtime with an explicit
// configuration, bypassing the TAINT_* environment resolution.
func InitWithConfig(c Config) {
	api.InitWithConfig(c)
}

// DefaultConfig returns the compiled-in configuration.
func DefaultConfig() Config {
	return config.Default()
}

// Fini disables recording and logs the end-of-run summary. Use defer
// right after Init. Queries remain answerable after Fini.
func Fini() {
	api.Fini()
}

// Reset drops all recorded state. Test support; not safe while
// goroutines are recording.
func Reset() {
	api.Reset()
}

// Enable turns the recording entry points back on.
func Enable() {
	api.Enable()
}

// Disable turns all recording entry points into no-ops until Enable.
func Disable() {
	api.Disable()
}

// Enabled reports whether the master recording gate is on.
func Enabled() bool {
	return api.Enabled()
}

// InternFunc interns a function name once and returns its handle.
//
// Instrumented code hoists one InternFunc call per function into a
// package-level var so the per-event entry points never touch strings:
//
//	var fnParse = taint.InternFunc("mypkg.Parse")
func InternFunc(name string) Name {
	return namedepot.Intern(name)
}

// EnterFunction records fn being entered on the calling goroutine.
// Inserted at the top of every instrumented function body.
func EnterFunction(fn Name) {
	api.EnterFunction(fn)
}

// EnterBlock records control entering block (fn, idx) on the calling
// goroutine. Inserted at the entry of every instrumented basic block.
func EnterBlock(fn Name, idx BBIndex) {
	api.EnterBlock(fn, idx)
}

// LeaveFunction records fn returning on the calling goroutine.
// Inserted as a deferred call right after EnterFunction.
func LeaveFunction(fn Name) {
	api.LeaveFunction(fn)
}

// AccessLabel records lbl being consumed in the calling goroutine's
// current block. The taint-propagation layer calls this on every
// tainted operand it observes. Returns false when nothing was recorded.
func AccessLabel(lbl Label, kind AccessKind) bool {
	return api.AccessLabel(lbl, kind)
}

// CurrentBlock returns the block the calling goroutine is currently
// inside, or false when control is between a call and the callee's
// first block.
func CurrentBlock() (BlockTrace, bool) {
	return api.CurrentBlock()
}

// LastEvent returns the calling goroutine's most recent live event.
func LastEvent() (Event, bool) {
	return api.LastEvent()
}

// LastUsage returns a reference to the block-entry event where lbl was
// last consumed, or false when the label was never consumed.
func LastUsage(lbl Label) (EventRef, bool) {
	return api.LastUsage(lbl)
}

// ResolveBlock resolves an event reference to its block snapshot.
func ResolveBlock(ref EventRef) (BlockTrace, bool) {
	return api.ResolveBlock(ref)
}

// Taints returns a detached snapshot of the full label → block map.
func Taints() map[Label]EventRef {
	return api.Taints()
}

// TaintsIn returns the sorted labels last consumed in the referenced
// block.
func TaintsIn(ref EventRef) []Label {
	return api.TaintsIn(ref)
}

// NumEvents returns the number of events recorded so far across all
// goroutines.
func NumEvents() uint64 {
	return api.NumEvents()
}

// Threads returns the sorted ids of goroutines that recorded events.
func Threads() []ThreadID {
	return api.Threads()
}

// History returns a copy of tid's full event history, oldest first.
// Read a live goroutine's history only after it has quiesced.
func History(tid ThreadID) []Event {
	return api.History(tid)
}

// CallEdges returns the observed call and return edges with hit counts.
func CallEdges() []EdgeCount {
	return api.CallEdges()
}

// CallComponents returns the mutual-recursion groups of the observed
// call graph.
func CallComponents() [][]Name {
	return api.CallComponents()
}

// RunID returns the identity of the current run, assigned at Init.
func RunID() uuid.UUID {
	return api.RunID()
}
