// Package eventstack implements the per-goroutine trace event stack.
//
// A Stack owns every event its goroutine ever records. Events live in an
// append-only arena that doubles as the event history (oldest first), and
// the live call structure is a singly-linked chain of arena indices
// threaded through the events' Prev fields:
//
//   - Push appends to the arena, links the new event to the old head and
//     makes it the new head.
//   - Pop moves the head back along the chain WITHOUT deleting anything:
//     popped events stay in the history and stay resolvable. Popping only
//     changes what counts as "current", not what is retained.
//   - Refs (arena indices) are the only handles handed out. They stay
//     valid for the life of the stack; resolving against a dropped or
//     reset stack yields not-found, never a wrong event.
//
// Ownership and concurrency contract: a Stack is mutated only by the
// goroutine that owns it, and owner-side push/pop/peek take no locks.
// Reading another goroutine's stack is defined only once that goroutine
// has stopped recording (quiesced) or under synchronization provided by
// the caller. This keeps the per-event path allocation-free beyond the
// arena append itself.
//
// A Stack must not be copied after first use: a copy would alias the
// arena and fork the head. Hand stacks around by pointer only.
package eventstack

import (
	"sync/atomic"

	"github.com/kolkov/tainttracker/internal/taint/basicblock"
	"github.com/kolkov/tainttracker/internal/taint/event"
	"github.com/kolkov/tainttracker/internal/taint/label"
	"github.com/kolkov/tainttracker/internal/taint/namedepot"
)

// Stack is one goroutine's event stack plus its full recording history.
type Stack struct {
	// arena holds every event ever pushed, oldest first. Slot i is the
	// event with Ref i; slots are never reordered or removed.
	arena []event.Event

	// head is the top of the live chain, NoRef when the live chain is
	// empty. Always a valid arena index otherwise.
	head event.Ref

	// counter is the shared process-wide event index source. Every push
	// assigns Index = counter.Add(1).
	counter *atomic.Uint64
}

// New creates an empty stack drawing event indices from counter.
//
// Passing nil gives the stack a private counter, which keeps standalone
// stacks (mostly in tests) self-contained; stacks that belong to one
// trace must share that trace's counter so indices stay globally unique.
func New(counter *atomic.Uint64) *Stack {
	if counter == nil {
		counter = new(atomic.Uint64)
	}
	return &Stack{head: event.NoRef, counter: counter}
}

// Push records a prepared event: assigns its global index, links it to
// the current head, appends it to the history and makes it the new head.
// Returns the new event's ref.
//
// Callers normally use the typed Push helpers; Push itself is the single
// point where indices and links are assigned, so events must not arrive
// with Index or Prev already set.
func (s *Stack) Push(e event.Event) event.Ref {
	e.Index = s.counter.Add(1)
	e.Prev = s.head

	s.arena = append(s.arena, e)
	s.head = event.Ref(len(s.arena) - 1)
	return s.head
}

// PushBlockEntry records control entering basic block (fn, idx). The
// entry counter starts at 0; re-entries are bumped in place via
// BumpEntries, not by pushing again.
func (s *Stack) PushBlockEntry(fn namedepot.Name, idx basicblock.BBIndex) event.Ref {
	return s.Push(event.Event{
		Kind:  event.KindBlockEntry,
		Func:  fn,
		Block: idx,
	})
}

// PushCall records fn being entered.
func (s *Stack) PushCall(fn namedepot.Name) event.Ref {
	return s.Push(event.Event{
		Kind: event.KindFunctionCall,
		Func: fn,
	})
}

// PushReturn records fn returning, with control resuming into the block
// entry at returnsTo (NoRef when the caller has no block on record).
func (s *Stack) PushReturn(fn namedepot.Name, returnsTo event.Ref) event.Ref {
	return s.Push(event.Event{
		Kind:      event.KindFunctionReturn,
		Func:      fn,
		ReturnsTo: returnsTo,
	})
}

// PushTaintAccess records label lbl touched inside fn. Access events sit
// on the chain but are transparent to CurrentBB and Caller walks.
func (s *Stack) PushTaintAccess(fn namedepot.Name, lbl label.Label, access label.AccessKind) event.Ref {
	return s.Push(event.Event{
		Kind:   event.KindTaintAccess,
		Func:   fn,
		Label:  lbl,
		Access: access,
	})
}

// Pop moves the head to the previous event on the chain. The popped
// event remains in the history and remains resolvable via At.
// Returns false when the live chain is already empty.
func (s *Stack) Pop() bool {
	if !s.head.Valid() {
		return false
	}
	s.head = s.arena[s.head].Prev
	return true
}

// Peek returns a copy of the head event, or false when the live chain is
// empty.
func (s *Stack) Peek() (event.Event, bool) {
	return s.At(s.head)
}

// Head returns the ref of the current head, NoRef when the live chain is
// empty.
//
//go:nosplit
func (s *Stack) Head() event.Ref {
	return s.head
}

// Empty reports whether the live chain is empty. The history may still
// hold events: popping everything empties the chain, not the history.
//
//go:nosplit
func (s *Stack) Empty() bool {
	return !s.head.Valid()
}

// Len returns the number of events ever recorded (the history length).
//
//go:nosplit
func (s *Stack) Len() int {
	return len(s.arena)
}

// Depth returns the length of the live chain. O(depth): walks the chain.
func (s *Stack) Depth() int {
	n := 0
	for ref := s.head; ref.Valid(); ref = s.arena[ref].Prev {
		n++
	}
	return n
}

// At returns a copy of the event at ref. False when ref is NoRef, stale
// (from before a Reset) or was never issued by this stack.
func (s *Stack) At(ref event.Ref) (event.Event, bool) {
	if !ref.Valid() || int(ref) >= len(s.arena) {
		return event.Event{}, false
	}
	return s.arena[ref], true
}

// BumpEntries increments the re-entry counter of the block-entry event at
// ref in place and returns the new count. False when ref does not resolve
// to a block entry.
//
// This is the only in-place mutation events ever see.
func (s *Stack) BumpEntries(ref event.Ref) (uint64, bool) {
	if !ref.Valid() || int(ref) >= len(s.arena) {
		return 0, false
	}
	e := &s.arena[ref]
	if e.Kind != event.KindBlockEntry {
		return 0, false
	}
	e.Entries++
	return e.Entries, true
}

// Caller returns the nearest block entry strictly before ref on the
// chain: the basic block the event at ref was reached from. NoRef when
// no block entry precedes it (thread root, or a tail call from
// uninstrumented code).
//
// O(chain distance to the previous block boundary); calls interleave
// with block entries in practice, so the walk is short.
func (s *Stack) Caller(ref event.Ref) event.Ref {
	e, ok := s.At(ref)
	if !ok {
		return event.NoRef
	}
	for prev := e.Prev; prev.Valid(); {
		pe := s.arena[prev]
		if pe.Kind == event.KindBlockEntry {
			return prev
		}
		prev = pe.Prev
	}
	return event.NoRef
}

// CurrentBB returns the block entry the goroutine is currently inside:
// the first block entry found walking back from the head. It returns
// NoRef immediately when a function call is found first, because control
// is then between the call and the callee's first block and no current
// block is defined. Returns and taint accesses are walked through.
func (s *Stack) CurrentBB() event.Ref {
	for ref := s.head; ref.Valid(); {
		e := s.arena[ref]
		switch e.Kind {
		case event.KindBlockEntry:
			return ref
		case event.KindFunctionCall:
			return event.NoRef
		}
		ref = e.Prev
	}
	return event.NoRef
}

// History returns a copy of the full event history, oldest first.
//
// The copy is detached: later pushes and entry-counter bumps do not show
// through. Meant for post-run traversal, not the recording path.
func (s *Stack) History() []event.Event {
	out := make([]event.Event, len(s.arena))
	copy(out, s.arena)
	return out
}
