// Package taint provides the execution-trace core of a dynamic
// taint-tracking runtime.
//
// The package is linked into an instrumented target program. On every
// basic-block entry, function call and function return the inserted
// callbacks record a trace event into the calling goroutine's event
// stack, and on every taint touch they move the label's "last usage" to
// the current block. The result is a queryable in-memory model of what
// ran, in what order, per goroutine, plus a live index from taint
// labels to the basic blocks where they were most recently consumed.
//
// # Quick Start
//
// Instrumentation calls are normally inserted by the tainttracker tool:
//
//	$ tainttracker instrument ./...
//	$ go run .
//
// For manual instrumentation:
//
//	package main
//
//	import "github.com/kolkov/tainttracker/taint"
//
//	var fnMain = taint.InternFunc("main.main")
//
//	func main() {
//		taint.Init()
//		defer taint.Fini()
//
//		taint.EnterFunction(fnMain)
//		defer taint.LeaveFunction(fnMain)
//		taint.EnterBlock(fnMain, 0)
//
//		// the propagation layer reports label touches:
//		taint.AccessLabel(1, taint.AccessRead)
//	}
//
// # API Overview
//
// The package provides functions for:
//   - Initialization and finalization: [Init], [InitWithConfig], [Fini]
//   - Recording entry points: [EnterFunction], [EnterBlock],
//     [LeaveFunction], [AccessLabel]
//   - Trace queries: [CurrentBlock], [LastEvent], [History], [Threads]
//   - Taint queries: [LastUsage], [Taints], [TaintsIn]
//   - Call-graph queries: [CallEdges], [CallComponents]
//
// # How It Works
//
// Each goroutine owns an event stack: pushes and pops track the live
// call structure while an append-only history retains every event ever
// recorded. Every event links back to the event that preceded it on the
// same goroutine, so the logical call stack can be reconstructed at any
// point without replaying the whole trace. Popping an event only moves
// the "current" marker; nothing recorded is ever deleted.
//
// Taint labels are opaque identifiers handed in by the propagation
// layer. The runtime maintains two maps under one lock: label to the
// block where it was last consumed, and block to the set of labels last
// consumed there. The pair is updated atomically, so downstream
// analysis never observes one side ahead of the other.
//
// # Concurrency
//
// Entry points are called directly from target code on any goroutine.
// A goroutine's stack is mutated only by its owner and takes no locks;
// shared state (the stack registry, the taint maps, the event index
// counter) is guarded by sync.Map, one mutex and atomics respectively.
// Read another goroutine's history only after it has quiesced.
//
// # Scope
//
// The package records and answers queries; it does not propagate
// labels, serialize the trace or reclaim event memory. The full ordered
// history is retained for the life of the process.
package taint
