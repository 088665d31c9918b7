// Package tracer implements the process-wide trace aggregate.
//
// A Trace owns one event stack per goroutine plus the two cross-referenced
// taint maps:
//
//   - lastUsage: label → the block-entry event where the label was last
//     consumed
//   - usageByBlock: block-entry event → set of labels last consumed there
//
// Invariant: for every (label, bb) pair in lastUsage, label is a member of
// usageByBlock[bb], and no other block maps from that label. Both maps are
// guarded by ONE mutex and always updated together, so a concurrent reader
// never observes one side ahead of the other.
//
// The recording methods (OnBlockEntry, OnFunctionEntry, OnFunctionExit,
// OnTaintAccess) implement the driving policy the instrumentation layer
// relies on: head re-entry bumping for loops, pop-unwind on return, and
// last-usage registration at access sites. They are the per-event hot
// paths and take no locks beyond what the touched structure needs.
package tracer

import (
	"sync"
	"sync/atomic"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/petermattis/goid"
	"golang.org/x/exp/slices"

	"github.com/kolkov/tainttracker/internal/taint/basicblock"
	"github.com/kolkov/tainttracker/internal/taint/event"
	"github.com/kolkov/tainttracker/internal/taint/eventstack"
	"github.com/kolkov/tainttracker/internal/taint/label"
	"github.com/kolkov/tainttracker/internal/taint/namedepot"
	"github.com/kolkov/tainttracker/internal/taint/setutil"
)

// ThreadID identifies a recording goroutine. Values come from the runtime
// goroutine id, which is never reused within a process.
type ThreadID int64

// EventRef names one event across the whole trace: the owning goroutine
// plus the event's slot in that goroutine's stack.
//
// The zero value is not valid; use NoEventRef for "no event".
type EventRef struct {
	TID ThreadID
	Ref event.Ref
}

// NoEventRef is the recognizable invalid cross-thread reference.
var NoEventRef = EventRef{Ref: event.NoRef}

// Valid reports whether the ref can possibly resolve.
//
//go:nosplit
func (r EventRef) Valid() bool {
	return r.Ref.Valid()
}

// Trace is the process-wide aggregate. One instance serves the whole run.
type Trace struct {
	// stacks maps ThreadID to *eventstack.Stack. Entries are created
	// lazily on a goroutine's first recorded event and live until Reset.
	// sync.Map fits the access pattern: each key is written once and
	// read many times.
	stacks sync.Map

	// events is the single process-wide event index source, handed to
	// every stack this trace creates. Only ever touched via atomic
	// increment, so indices are unique and strictly ordered even though
	// goroutines interleave.
	events atomic.Uint64

	// mu guards lastUsage and usageByBlock together. Every mutation of
	// either map happens under it; that is what makes the dual-map
	// invariant hold for concurrent readers.
	mu sync.Mutex

	// lastUsage maps a label to the block-entry event where it was last
	// consumed.
	lastUsage map[label.Label]EventRef

	// usageByBlock is the inverse: block-entry event to the set of
	// labels last consumed there. Sets are thread-unsafe by
	// construction because mu already serializes all access.
	usageByBlock map[EventRef]mapset.Set[label.Label]
}

// New creates an empty trace.
func New() *Trace {
	return &Trace{
		lastUsage:    make(map[label.Label]EventRef),
		usageByBlock: make(map[EventRef]mapset.Set[label.Label]),
	}
}

// Stack returns the event stack for tid, creating it on first sight.
//
// Load is the fast path; LoadOrStore only runs the first time a
// goroutine records anything, and the losing stack of a racing create is
// discarded before anything is pushed onto it.
func (t *Trace) Stack(tid ThreadID) *eventstack.Stack {
	if val, ok := t.stacks.Load(tid); ok {
		return val.(*eventstack.Stack)
	}

	fresh := eventstack.New(&t.events)
	val, _ := t.stacks.LoadOrStore(tid, fresh)
	return val.(*eventstack.Stack)
}

// CurrentStack returns the calling goroutine's stack and id, creating
// the stack on first sight.
func (t *Trace) CurrentStack() (*eventstack.Stack, ThreadID) {
	tid := ThreadID(goid.Get())
	return t.Stack(tid), tid
}

// StackOf returns tid's stack without creating one.
//
// Post-run inspection helper: reading a stack still owned by a running
// goroutine is subject to the ownership contract.
func (t *Trace) StackOf(tid ThreadID) (*eventstack.Stack, bool) {
	return t.stackIfPresent(tid)
}

// stackIfPresent returns tid's stack without creating one.
func (t *Trace) stackIfPresent(tid ThreadID) (*eventstack.Stack, bool) {
	val, ok := t.stacks.Load(tid)
	if !ok {
		return nil, false
	}
	return val.(*eventstack.Stack), true
}

// OnBlockEntry records control entering block (fn, idx) on stack s.
//
// When the stack head is already the same block, the visit is a logical
// re-entry (a loop back-edge onto the current block): the head's entry
// counter is bumped in place and no event is pushed. Any other case
// pushes a fresh entry with counter 0.
//
// Must be called by the goroutine that owns s.
func (t *Trace) OnBlockEntry(s *eventstack.Stack, fn namedepot.Name, idx basicblock.BBIndex) event.Ref {
	head := s.Head()
	if e, ok := s.At(head); ok &&
		e.Kind == event.KindBlockEntry && e.Func == fn && e.Block == idx {
		s.BumpEntries(head)
		return head
	}
	return s.PushBlockEntry(fn, idx)
}

// OnFunctionEntry records fn being entered on stack s.
//
// Must be called by the goroutine that owns s.
func (t *Trace) OnFunctionEntry(s *eventstack.Stack, fn namedepot.Name) event.Ref {
	return s.PushCall(fn)
}

// OnFunctionExit records fn returning on stack s.
//
// The live chain is unwound first: events are popped until the matching
// open call for fn has been popped, which also unwinds callees that
// never recorded a return of their own (panic unwinding, exits from
// uninstrumented code). When no call for fn is open the whole chain is
// unwound. The return event is then pushed on top of the caller's
// context with its resume block pre-resolved.
//
// Returns the return event's ref and whether a matching call was found.
//
// Must be called by the goroutine that owns s.
func (t *Trace) OnFunctionExit(s *eventstack.Stack, fn namedepot.Name) (event.Ref, bool) {
	matched := false
	for {
		e, ok := s.Peek()
		if !ok {
			break
		}
		s.Pop()
		if e.Kind == event.KindFunctionCall && e.Func == fn {
			matched = true
			break
		}
	}

	return s.PushReturn(fn, s.CurrentBB()), matched
}

// OnTaintAccess records label lbl being consumed in the current block of
// stack s: the label's last usage moves to that block, and, when
// recordEvent is set, a taint-access event is pushed onto the chain.
//
// With no current block on record (between a call and the callee's first
// block, or before any block) there is nothing to associate the label
// with; the access is dropped and false returned.
//
// Must be called by the goroutine that owns s.
func (t *Trace) OnTaintAccess(s *eventstack.Stack, tid ThreadID, lbl label.Label, access label.AccessKind, recordEvent bool) (EventRef, bool) {
	bb := s.CurrentBB()
	if !bb.Valid() {
		return NoEventRef, false
	}

	ref := EventRef{TID: tid, Ref: bb}
	t.SetLastUsage(lbl, ref)

	if recordEvent {
		e, _ := s.At(bb)
		s.PushTaintAccess(e.Func, lbl, access)
	}
	return ref, true
}

// LastEvent returns the head of tid's live chain, or false when the
// goroutine has no stack or an empty chain.
func (t *Trace) LastEvent(tid ThreadID) (event.Event, bool) {
	s, ok := t.stackIfPresent(tid)
	if !ok {
		return event.Event{}, false
	}
	return s.Peek()
}

// SecondToLastEvent returns the event before the head on tid's live
// chain, or false when fewer than two events are live.
func (t *Trace) SecondToLastEvent(tid ThreadID) (event.Event, bool) {
	s, ok := t.stackIfPresent(tid)
	if !ok {
		return event.Event{}, false
	}
	head, ok := s.Peek()
	if !ok {
		return event.Event{}, false
	}
	return s.At(head.Prev)
}

// CurrentBB returns the block tid is currently inside, or false when
// control is between a call and the callee's first block, or the
// goroutine never recorded a block.
func (t *Trace) CurrentBB(tid ThreadID) (EventRef, bool) {
	s, ok := t.stackIfPresent(tid)
	if !ok {
		return NoEventRef, false
	}
	bb := s.CurrentBB()
	if !bb.Valid() {
		return NoEventRef, false
	}
	return EventRef{TID: tid, Ref: bb}, true
}

// At resolves a cross-thread event reference to a copy of the event.
//
// Resolving refs of a goroutine that is still recording is subject to
// the stack ownership contract: synchronize with the owner or wait for
// it to quiesce.
func (t *Trace) At(ref EventRef) (event.Event, bool) {
	if !ref.Valid() {
		return event.Event{}, false
	}
	s, ok := t.stackIfPresent(ref.TID)
	if !ok {
		return event.Event{}, false
	}
	return s.At(ref.Ref)
}

// BB resolves a cross-thread reference to its block snapshot.
func (t *Trace) BB(ref EventRef) (basicblock.Trace, bool) {
	e, ok := t.At(ref)
	if !ok || e.Kind != event.KindBlockEntry {
		return basicblock.Trace{}, false
	}
	return e.BB(), true
}

// SetLastUsage records bb as the block where lbl was last consumed.
//
// When the label previously mapped to another block it is removed from
// that block's set first, so the dual-map invariant holds at every point
// a reader can observe: one block per label, label present in exactly
// that block's set. Re-recording the same (label, bb) pair is a no-op.
// Sets that drain to empty are dropped.
func (t *Trace) SetLastUsage(lbl label.Label, bb EventRef) {
	if !bb.Valid() {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.lastUsage[lbl]; ok {
		if old == bb {
			return
		}
		if set, ok := t.usageByBlock[old]; ok {
			set.Remove(lbl)
			if set.Cardinality() == 0 {
				delete(t.usageByBlock, old)
			}
		}
	}

	t.lastUsage[lbl] = bb
	set, ok := t.usageByBlock[bb]
	if !ok {
		set = mapset.NewThreadUnsafeSet[label.Label]()
		t.usageByBlock[bb] = set
	}
	set.Add(lbl)
}

// LastUsage returns the block where lbl was last consumed, or false when
// the label has never been consumed.
func (t *Trace) LastUsage(lbl label.Label) (EventRef, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	bb, ok := t.lastUsage[lbl]
	return bb, ok
}

// Taints returns a snapshot of the full label → block map.
//
// The snapshot is detached: mutating it does not touch the trace, and
// later SetLastUsage calls do not show through.
func (t *Trace) Taints() map[label.Label]EventRef {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[label.Label]EventRef, len(t.lastUsage))
	for lbl, bb := range t.lastUsage {
		out[lbl] = bb
	}
	return out
}

// TaintsIn returns the labels last consumed in bb, sorted, empty when
// none are recorded. The slice is a detached snapshot.
func (t *Trace) TaintsIn(bb EventRef) []label.Label {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.usageByBlock[bb]
	if !ok {
		return []label.Label{}
	}
	return setutil.Sorted(set)
}

// NumEvents returns the number of events recorded so far across all
// goroutines.
func (t *Trace) NumEvents() uint64 {
	return t.events.Load()
}

// Threads returns the ids of all goroutines that have recorded events,
// sorted ascending.
func (t *Trace) Threads() []ThreadID {
	var ids []ThreadID
	t.stacks.Range(func(key, _ any) bool {
		ids = append(ids, key.(ThreadID))
		return true
	})
	slices.Sort(ids)
	return ids
}

// Stats summarizes the trace for end-of-run reporting.
type Stats struct {
	// Threads is the number of goroutines that recorded events.
	Threads int

	// Events is the total number of recorded events.
	Events uint64

	// Labels is the number of labels with a last-usage record.
	Labels int

	// Blocks is the number of distinct blocks holding at least one
	// label.
	Blocks int
}

// Stats gathers current counters. Not for the recording path: takes the
// taint-map lock and walks the stack registry.
func (t *Trace) Stats() Stats {
	st := Stats{Events: t.events.Load()}
	t.stacks.Range(func(_, _ any) bool {
		st.Threads++
		return true
	})

	t.mu.Lock()
	st.Labels = len(t.lastUsage)
	st.Blocks = len(t.usageByBlock)
	t.mu.Unlock()

	return st
}

// Reset drops every stack, both taint maps and the event counter.
//
// Refs issued before Reset are invalidated by contract. Holding one
// across Reset is a caller error, not detected at runtime: it resolves
// to not-found while the owning goroutine has no new stack, and callers
// must not keep refs beyond that. Not safe to call while goroutines are
// recording; test and lifecycle use only.
func (t *Trace) Reset() {
	t.stacks.Range(func(key, _ any) bool {
		t.stacks.Delete(key)
		return true
	})
	t.events.Store(0)

	t.mu.Lock()
	t.lastUsage = make(map[label.Label]EventRef)
	t.usageByBlock = make(map[EventRef]mapset.Set[label.Label])
	t.mu.Unlock()
}
