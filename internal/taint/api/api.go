// Package api implements the runtime entry points instrumented programs
// link against.
//
// Instrumentation inserts calls to EnterFunction, EnterBlock,
// LeaveFunction and AccessLabel on every function entry, basic-block
// entry, function return and taint touch. These are CRITICAL HOT PATHS:
// they run on every basic block of the target, so they check the enabled
// gate first, never log, and never allocate beyond the arena append of
// the touched stack.
//
// The package owns the process-wide state: one tracer.Trace, one
// callgraph.Graph, the enabled and recording gates, the resolved
// configuration, the logger and the run identity. Lifecycle calls (Init,
// Fini, Reset) are cold paths and may log and lock freely.
package api

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/petermattis/goid"
	"github.com/rs/zerolog"

	"github.com/kolkov/tainttracker/internal/taint/basicblock"
	"github.com/kolkov/tainttracker/internal/taint/callgraph"
	"github.com/kolkov/tainttracker/internal/taint/config"
	"github.com/kolkov/tainttracker/internal/taint/event"
	"github.com/kolkov/tainttracker/internal/taint/label"
	"github.com/kolkov/tainttracker/internal/taint/namedepot"
	"github.com/kolkov/tainttracker/internal/taint/tracer"
)

// Global runtime state.
//
// trace and edges live for the whole process; the gates and knobs are
// plain atomics so the hot paths read them without locks. mu serializes
// the cold lifecycle paths only.
var (
	// enabled is the master gate. Every entry point returns immediately
	// when it is off.
	enabled atomic.Bool

	// recording is the start/stop-function gate. It starts on unless a
	// start function is configured, flips on when the start function is
	// entered and off when the stop function is entered.
	recording atomic.Bool

	// trace is the process-wide trace aggregate.
	trace = tracer.New()

	// edges is the observed runtime call graph.
	edges = callgraph.New()

	// traceAccesses mirrors Config.TraceTaintAccesses for lock-free
	// reads on the access path.
	traceAccesses atomic.Bool

	// recordGraph mirrors Config.RecordCallGraph.
	recordGraph atomic.Bool

	// startFn and stopFn hold the interned gate function handles,
	// NoName when unconfigured.
	startFn atomic.Uint32
	stopFn  atomic.Uint32

	// unmatchedReturns counts LeaveFunction calls that found no open
	// call to unwind (panic exits, returns from uninstrumented code).
	unmatchedReturns atomic.Uint64

	// mu guards the fields below during Init/Fini/Reset.
	mu     sync.Mutex
	cfg    = config.Default()
	logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	runID  uuid.UUID
)

// Init initializes the runtime from the environment: defaults, then the
// TAINT_CONFIG file when set, then TAINT_* overrides.
//
// Idempotent in the sense of the teacher-tool convention: calling it
// again re-resolves the configuration and reconfigures the gates without
// touching already-recorded events. Call it before any goroutine records.
func Init() {
	c, err := config.LoadFromEnv()
	if err != nil {
		// A broken environment must not stop an instrumented binary;
		// fall back to defaults plus whatever overrides parse.
		logger.Warn().Err(err).Msg("invalid taint configuration, using defaults")
		c = config.FromEnv(config.Default())
	}
	InitWithConfig(c)
}

// InitWithConfig initializes the runtime with an explicit configuration.
func InitWithConfig(c config.Config) {
	mu.Lock()
	defer mu.Unlock()

	cfg = c
	runID = uuid.New()
	logger = newLogger(c)

	traceAccesses.Store(c.TraceTaintAccesses)
	recordGraph.Store(c.RecordCallGraph)
	startFn.Store(uint32(namedepot.Intern(c.StartFunction)))
	stopFn.Store(uint32(namedepot.Intern(c.StopFunction)))

	// With a start function configured, recording waits for its first
	// entry; otherwise it runs from Init.
	recording.Store(c.StartFunction == "")
	enabled.Store(c.Enabled)

	logger.Info().
		Str("run_id", runID.String()).
		Bool("enabled", c.Enabled).
		Bool("trace_accesses", c.TraceTaintAccesses).
		Bool("call_graph", c.RecordCallGraph).
		Str("start_function", c.StartFunction).
		Str("stop_function", c.StopFunction).
		Msg("taint tracer initialized")
}

// newLogger builds the configured logger: console writer by default,
// plain JSON to stderr when LogJSON is set.
func newLogger(c config.Config) zerolog.Logger {
	if c.LogJSON {
		return zerolog.New(os.Stderr).With().Timestamp().Logger().Level(c.Level())
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger().Level(c.Level())
}

// Fini disables recording and logs the end-of-run summary.
//
// Safe to call more than once; every call logs the then-current
// counters. Queries remain answerable after Fini.
func Fini() {
	enabled.Store(false)

	mu.Lock()
	defer mu.Unlock()

	st := trace.Stats()
	names, nameBytes := namedepot.Stats()
	logger.Info().
		Str("run_id", runID.String()).
		Uint64("events", st.Events).
		Int("threads", st.Threads).
		Int("labels", st.Labels).
		Int("tainted_blocks", st.Blocks).
		Int("call_edges", edges.Len()).
		Uint64("unmatched_returns", unmatchedReturns.Load()).
		Int("functions", names).
		Int64("name_bytes", nameBytes).
		Msg("taint tracer finished")
}

// Reset drops all recorded state: the trace, the call graph, the name
// depot and the mismatch counter. The gates keep their configuration.
//
// Test and lifecycle support only; not safe while goroutines are
// recording. Handles and refs issued before Reset are invalidated by
// contract.
func Reset() {
	trace.Reset()
	edges.Reset()
	namedepot.Reset()
	unmatchedReturns.Store(0)
}

// Enable turns recording entry points back on.
func Enable() {
	enabled.Store(true)
}

// Disable turns all recording entry points into no-ops.
//
// Useful around target code sections that should not pollute the trace.
func Disable() {
	enabled.Store(false)
}

// Enabled reports whether the master gate is on.
func Enabled() bool {
	return enabled.Load()
}

// Recording reports whether events are currently being recorded: the
// master gate is on and the start function (when configured) has been
// entered without the stop function following.
func Recording() bool {
	return enabled.Load() && recording.Load()
}

// on is the hot-path gate check.
//
//go:nosplit
func on() bool {
	return enabled.Load() && recording.Load()
}

// gateFunction applies the start/stop-function gate to an entered
// function and reports whether the entry should be recorded.
//
// Entering the start function begins recording with that entry
// included; entering the stop function ends recording with that entry
// excluded.
func gateFunction(fn namedepot.Name) bool {
	if recording.Load() {
		if stop := namedepot.Name(stopFn.Load()); stop != namedepot.NoName && fn == stop {
			recording.Store(false)
			return false
		}
		return true
	}
	if start := namedepot.Name(startFn.Load()); start != namedepot.NoName && fn == start {
		recording.Store(true)
		return true
	}
	return false
}

// currentTID returns the calling goroutine's thread id.
//
//go:nosplit
func currentTID() tracer.ThreadID {
	return tracer.ThreadID(goid.Get())
}

// EnterFunction records fn being entered on the calling goroutine.
//
// When call-graph recording is on, a forward edge from the enclosing
// function (the current block's function, NoName at a thread root) to fn
// is recorded as well.
//
//go:nosplit
func EnterFunction(fn namedepot.Name) {
	if !enabled.Load() || !gateFunction(fn) {
		return
	}

	s, _ := trace.CurrentStack()

	var caller namedepot.Name
	graph := recordGraph.Load()
	if graph {
		if bb := s.CurrentBB(); bb.Valid() {
			e, _ := s.At(bb)
			caller = e.Func
		}
	}

	trace.OnFunctionEntry(s, fn)
	if graph {
		edges.Record(caller, fn, callgraph.EdgeCall)
	}
}

// EnterBlock records control entering block (fn, idx) on the calling
// goroutine. Re-entering the block at the stack head bumps its entry
// counter instead of growing the history.
//
//go:nosplit
func EnterBlock(fn namedepot.Name, idx basicblock.BBIndex) {
	if !on() {
		return
	}
	s, _ := trace.CurrentStack()
	trace.OnBlockEntry(s, fn, idx)
}

// LeaveFunction records fn returning on the calling goroutine, unwinding
// nested unreturned calls and resolving the resume block.
//
// When call-graph recording is on, a backward edge from fn to the
// function control resumes into is recorded as well.
//
//go:nosplit
func LeaveFunction(fn namedepot.Name) {
	if !on() {
		return
	}

	s, _ := trace.CurrentStack()
	ret, matched := trace.OnFunctionExit(s, fn)
	if !matched {
		unmatchedReturns.Add(1)
	}

	if recordGraph.Load() {
		var to namedepot.Name
		if e, ok := s.At(ret); ok && e.ReturnsTo.Valid() {
			if bb, ok := s.At(e.ReturnsTo); ok {
				to = bb.Func
			}
		}
		edges.Record(fn, to, callgraph.EdgeReturn)
	}
}

// AccessLabel records lbl being consumed in the calling goroutine's
// current block and moves the label's last usage there.
//
// Returns false when nothing was recorded: recording is off, the label
// is Clean, or no current block is defined (control is between a call
// and the callee's first block).
//
//go:nosplit
func AccessLabel(lbl label.Label, kind label.AccessKind) bool {
	if !on() || !lbl.Tainted() {
		return false
	}
	s, tid := trace.CurrentStack()
	_, ok := trace.OnTaintAccess(s, tid, lbl, kind, traceAccesses.Load())
	return ok
}

// CurrentBlock returns the snapshot of the block the calling goroutine
// is currently inside, or false when control is between a call and the
// callee's first block or nothing was recorded yet.
func CurrentBlock() (basicblock.Trace, bool) {
	ref, ok := trace.CurrentBB(currentTID())
	if !ok {
		return basicblock.Trace{}, false
	}
	return trace.BB(ref)
}

// LastEvent returns the calling goroutine's most recent live event.
func LastEvent() (event.Event, bool) {
	return trace.LastEvent(currentTID())
}

// SecondToLastEvent returns the event before the most recent one on the
// calling goroutine's live chain.
func SecondToLastEvent() (event.Event, bool) {
	return trace.SecondToLastEvent(currentTID())
}

// LastUsage returns the block-entry event where lbl was last consumed.
func LastUsage(lbl label.Label) (tracer.EventRef, bool) {
	return trace.LastUsage(lbl)
}

// ResolveBlock resolves a cross-thread event reference to its block
// snapshot. Subject to the stack ownership contract for goroutines that
// are still recording.
func ResolveBlock(ref tracer.EventRef) (basicblock.Trace, bool) {
	return trace.BB(ref)
}

// Taints returns a detached snapshot of the full label → block map.
func Taints() map[label.Label]tracer.EventRef {
	return trace.Taints()
}

// TaintsIn returns the sorted labels last consumed in the referenced
// block, empty when none are recorded.
func TaintsIn(ref tracer.EventRef) []label.Label {
	return trace.TaintsIn(ref)
}

// NumEvents returns the number of events recorded so far.
func NumEvents() uint64 {
	return trace.NumEvents()
}

// Threads returns the sorted ids of goroutines that recorded events.
func Threads() []tracer.ThreadID {
	return trace.Threads()
}

// History returns a copy of tid's full event history, oldest first, or
// nil when the goroutine never recorded. Post-run traversal only: read
// a live goroutine's history only after it has quiesced.
func History(tid tracer.ThreadID) []event.Event {
	s, ok := trace.StackOf(tid)
	if !ok {
		return nil
	}
	return s.History()
}

// CallEdges returns the observed call and return edges with hit counts.
func CallEdges() []callgraph.EdgeCount {
	return edges.Edges()
}

// CallComponents returns the recursion groups of the observed call
// graph.
func CallComponents() [][]namedepot.Name {
	return edges.Components()
}

// CallTopOrder returns the observed functions in topological call order,
// or false when recursion makes no such order exist.
func CallTopOrder() ([]namedepot.Name, bool) {
	return edges.TopOrder()
}

// RunID returns the identity of the current run, assigned at Init.
func RunID() uuid.UUID {
	mu.Lock()
	defer mu.Unlock()
	return runID
}

// Stats summarizes the runtime for reporting.
type Stats struct {
	Trace            tracer.Stats
	CallEdges        int
	UnmatchedReturns uint64
}

// GetStats gathers current counters. Not for the recording path.
func GetStats() Stats {
	return Stats{
		Trace:            trace.Stats(),
		CallEdges:        edges.Len(),
		UnmatchedReturns: unmatchedReturns.Load(),
	}
}
