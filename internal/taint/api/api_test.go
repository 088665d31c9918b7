package api

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/tainttracker/internal/taint/callgraph"
	"github.com/kolkov/tainttracker/internal/taint/config"
	"github.com/kolkov/tainttracker/internal/taint/event"
	"github.com/kolkov/tainttracker/internal/taint/label"
	"github.com/kolkov/tainttracker/internal/taint/namedepot"
)

// reinit resets all recorded state and reconfigures the runtime with a
// quiet logger. Tests share the package-level trace, so every test
// starts from here.
func reinit(t *testing.T, c config.Config) {
	t.Helper()
	Reset()
	c.LogLevel = "error"
	InitWithConfig(c)
}

func TestDisabledEntryPointsAreNoOps(t *testing.T) {
	c := config.Default()
	c.Enabled = false
	reinit(t, c)

	f := namedepot.Intern("main.f")
	EnterFunction(f)
	EnterBlock(f, 0)
	AccessLabel(1, label.AccessRead)
	LeaveFunction(f)

	assert.False(t, Enabled())
	assert.Equal(t, uint64(0), NumEvents())
	assert.Empty(t, Threads())
}

func TestEnterLeaveRecordsEventsAndEdges(t *testing.T) {
	reinit(t, config.Default())

	f := namedepot.Intern("main.f")
	g := namedepot.Intern("main.g")

	EnterBlock(f, 0)
	EnterFunction(g)

	_, ok := CurrentBlock()
	assert.False(t, ok, "between the call and the callee's first block there is no current block")

	EnterBlock(g, 0)
	bb, ok := CurrentBlock()
	require.True(t, ok)
	assert.Equal(t, g, bb.Func)

	LeaveFunction(g)

	bb, ok = CurrentBlock()
	require.True(t, ok)
	assert.Equal(t, f, bb.Func, "after the return the caller's block is current again")

	last, ok := LastEvent()
	require.True(t, ok)
	assert.Equal(t, event.KindFunctionReturn, last.Kind)

	st := GetStats()
	assert.Equal(t, uint64(4), st.Trace.Events)
	assert.Equal(t, uint64(0), st.UnmatchedReturns)

	found := map[callgraph.EdgeKind]bool{}
	for _, e := range CallEdges() {
		if e.From == f && e.To == g && e.Kind == callgraph.EdgeCall {
			found[callgraph.EdgeCall] = true
			assert.Equal(t, uint64(1), e.Count)
		}
		if e.From == g && e.To == f && e.Kind == callgraph.EdgeReturn {
			found[callgraph.EdgeReturn] = true
		}
	}
	assert.True(t, found[callgraph.EdgeCall], "call edge f→g must be recorded")
	assert.True(t, found[callgraph.EdgeReturn], "return edge g→f must be recorded")
}

func TestStartStopFunctionGate(t *testing.T) {
	c := config.Default()
	c.StartFunction = "main.target"
	c.StopFunction = "main.teardown"
	reinit(t, c)

	warmup := namedepot.Intern("main.warmup")
	target := namedepot.Intern("main.target")
	teardown := namedepot.Intern("main.teardown")

	assert.False(t, Recording(), "recording waits for the start function")

	EnterFunction(warmup)
	EnterBlock(warmup, 0)
	assert.Equal(t, uint64(0), NumEvents(), "nothing records before the start function")

	EnterFunction(target)
	assert.True(t, Recording())
	assert.Equal(t, uint64(1), NumEvents(), "the start function's own entry is recorded")

	EnterBlock(target, 0)
	assert.Equal(t, uint64(2), NumEvents())

	EnterFunction(teardown)
	assert.False(t, Recording(), "the stop function ends recording")
	assert.Equal(t, uint64(2), NumEvents(), "the stop function's entry is not recorded")

	EnterBlock(teardown, 0)
	assert.Equal(t, uint64(2), NumEvents())
}

func TestAccessLabelMovesLastUsage(t *testing.T) {
	reinit(t, config.Default())

	f := namedepot.Intern("main.parse")

	assert.False(t, AccessLabel(7, label.AccessRead), "no current block yet")

	EnterBlock(f, 0)
	require.True(t, AccessLabel(7, label.AccessCmp))

	ref, ok := LastUsage(7)
	require.True(t, ok)
	bb, ok := ResolveBlock(ref)
	require.True(t, ok)
	assert.Equal(t, f, bb.Func)

	EnterBlock(f, 1)
	require.True(t, AccessLabel(7, label.AccessRead))

	moved, ok := LastUsage(7)
	require.True(t, ok)
	assert.NotEqual(t, ref, moved, "last usage must move to the new block")
	assert.Empty(t, TaintsIn(ref), "the old block no longer holds the label")
	assert.Equal(t, []label.Label{7}, TaintsIn(moved))

	assert.False(t, AccessLabel(label.Clean, label.AccessRead), "the clean label is never recorded")
}

func TestAccessEventsOnlyWhenConfigured(t *testing.T) {
	reinit(t, config.Default())

	f := namedepot.Intern("main.f")
	EnterBlock(f, 0)
	AccessLabel(3, label.AccessRead)
	assert.Equal(t, uint64(1), NumEvents(), "access events are off by default")

	c := config.Default()
	c.TraceTaintAccesses = true
	reinit(t, c)

	f = namedepot.Intern("main.f")
	EnterBlock(f, 0)
	AccessLabel(3, label.AccessRead)
	assert.Equal(t, uint64(2), NumEvents(), "access event pushed onto the chain")

	last, ok := LastEvent()
	require.True(t, ok)
	assert.Equal(t, event.KindTaintAccess, last.Kind)
	assert.Equal(t, label.Label(3), last.Label)

	bb, ok := CurrentBlock()
	require.True(t, ok)
	assert.Equal(t, f, bb.Func, "access events are transparent to block walks")
}

func TestUnmatchedReturnCounted(t *testing.T) {
	reinit(t, config.Default())

	f := namedepot.Intern("main.f")
	EnterBlock(f, 0)
	LeaveFunction(namedepot.Intern("main.never_entered"))

	assert.Equal(t, uint64(1), GetStats().UnmatchedReturns)
}

func TestRunIDChangesAcrossInit(t *testing.T) {
	reinit(t, config.Default())
	first := RunID()
	reinit(t, config.Default())

	assert.NotEqual(t, first, RunID())
}

func TestConcurrentRecording(t *testing.T) {
	reinit(t, config.Default())

	const goroutines = 8
	const blocks = 200

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(n int) {
			defer wg.Done()
			f := namedepot.Intern("main.worker")
			for b := 0; b < blocks; b++ {
				EnterBlock(f, 0)
				EnterBlock(f, 1)
				AccessLabel(label.Label(n+1), label.AccessRead)
			}
		}(i)
	}
	wg.Wait()

	st := GetStats()
	assert.Equal(t, uint64(goroutines*blocks*2), st.Trace.Events)
	assert.Equal(t, goroutines, st.Trace.Threads)
	assert.Equal(t, goroutines, st.Trace.Labels)

	seen := make(map[uint64]bool)
	for _, tid := range Threads() {
		for _, e := range History(tid) {
			assert.False(t, seen[e.Index], "event index %d issued twice", e.Index)
			seen[e.Index] = true
		}
	}
	assert.Len(t, seen, goroutines*blocks*2)
}
