// Package callgraph records the function call edges observed at run time.
//
// Every recorded function entry contributes a forward edge (caller →
// callee) and every recorded return a backward edge (returned-from →
// returned-to). Edges carry hit counts. The graph answers structural
// queries after (or during) the run: who calls whom, which functions are
// mutually recursive, and whether the observed call relation admits a
// topological order.
//
// This is an observed graph, not a static one: it contains exactly the
// edges the instrumented run exercised.
package callgraph

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/yourbasic/graph"

	"github.com/kolkov/tainttracker/internal/taint/namedepot"
	"github.com/kolkov/tainttracker/internal/taint/setutil"
)

// EdgeKind distinguishes call edges from return edges.
type EdgeKind uint8

const (
	// EdgeCall is the forward edge recorded at function entry.
	EdgeCall EdgeKind = iota

	// EdgeReturn is the backward edge recorded at function return.
	EdgeReturn
)

// String returns "call" or "return".
func (k EdgeKind) String() string {
	if k == EdgeCall {
		return "call"
	}
	return "return"
}

// Edge is one directed edge of the observed graph.
type Edge struct {
	From namedepot.Name
	To   namedepot.Name
	Kind EdgeKind
}

// EdgeCount pairs an edge with the number of times it was observed.
type EdgeCount struct {
	Edge
	Count uint64
}

// Graph accumulates observed edges. Safe for concurrent use: recording
// from many goroutines serializes on one mutex, which is acceptable
// because edges are recorded at function granularity, not block
// granularity.
type Graph struct {
	mu     sync.Mutex
	counts map[Edge]uint64

	// callees and callers index the call edges only; return edges are
	// their duals and add no structure.
	callees map[namedepot.Name]mapset.Set[namedepot.Name]
	callers map[namedepot.Name]mapset.Set[namedepot.Name]
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		counts:  make(map[Edge]uint64),
		callees: make(map[namedepot.Name]mapset.Set[namedepot.Name]),
		callers: make(map[namedepot.Name]mapset.Set[namedepot.Name]),
	}
}

// Record adds one observation of the edge (from, to, kind).
//
// Edges with NoName on either end come from thread roots and
// uninstrumented callers; they are counted but excluded from the
// adjacency indexes.
func (g *Graph) Record(from, to namedepot.Name, kind EdgeKind) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.counts[Edge{From: from, To: to, Kind: kind}]++

	if kind != EdgeCall || from == namedepot.NoName || to == namedepot.NoName {
		return
	}

	set, ok := g.callees[from]
	if !ok {
		set = mapset.NewThreadUnsafeSet[namedepot.Name]()
		g.callees[from] = set
	}
	set.Add(to)

	set, ok = g.callers[to]
	if !ok {
		set = mapset.NewThreadUnsafeSet[namedepot.Name]()
		g.callers[to] = set
	}
	set.Add(from)
}

// Len returns the number of distinct observed edges.
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.counts)
}

// Count returns the number of observations of the edge.
func (g *Graph) Count(from, to namedepot.Name, kind EdgeKind) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counts[Edge{From: from, To: to, Kind: kind}]
}

// Edges returns all observed edges with counts, sorted by from, to and
// kind for stable output. Detached snapshot.
func (g *Graph) Edges() []EdgeCount {
	g.mu.Lock()
	out := make([]EdgeCount, 0, len(g.counts))
	for e, n := range g.counts {
		out = append(out, EdgeCount{Edge: e, Count: n})
	}
	g.mu.Unlock()

	return setutil.SortedFunc(out, func(a, b EdgeCount) bool {
		if a.From != b.From {
			return a.From.String() < b.From.String()
		}
		if a.To != b.To {
			return a.To.String() < b.To.String()
		}
		return a.Kind < b.Kind
	})
}

// Callees returns the functions fn was observed calling, sorted by name.
func (g *Graph) Callees(fn namedepot.Name) []namedepot.Name {
	return g.adjacent(g.callees, fn)
}

// Callers returns the functions observed calling fn, sorted by name.
func (g *Graph) Callers(fn namedepot.Name) []namedepot.Name {
	return g.adjacent(g.callers, fn)
}

func (g *Graph) adjacent(index map[namedepot.Name]mapset.Set[namedepot.Name], fn namedepot.Name) []namedepot.Name {
	g.mu.Lock()
	set, ok := index[fn]
	var names []namedepot.Name
	if ok {
		names = set.ToSlice()
	}
	g.mu.Unlock()

	return setutil.SortedFunc(names, func(a, b namedepot.Name) bool {
		return a.String() < b.String()
	})
}

// participants returns the sorted functions appearing in call edges and
// a dense index over them. Caller holds g.mu.
func (g *Graph) participants() ([]namedepot.Name, map[namedepot.Name]int) {
	set := mapset.NewThreadUnsafeSet[namedepot.Name]()
	for e := range g.counts {
		if e.Kind != EdgeCall || e.From == namedepot.NoName || e.To == namedepot.NoName {
			continue
		}
		set.Add(e.From)
		set.Add(e.To)
	}

	names := setutil.SortedFunc(set.ToSlice(), func(a, b namedepot.Name) bool {
		return a.String() < b.String()
	})
	index := make(map[namedepot.Name]int, len(names))
	for i, n := range names {
		index[n] = i
	}
	return names, index
}

// dense builds the yourbasic adjacency over the dense participant index.
// Caller holds g.mu.
func (g *Graph) dense(names []namedepot.Name, index map[namedepot.Name]int) *graph.Mutable {
	dg := graph.New(len(names))
	for e := range g.counts {
		if e.Kind != EdgeCall || e.From == namedepot.NoName || e.To == namedepot.NoName {
			continue
		}
		dg.Add(index[e.From], index[e.To])
	}
	return dg
}

// Components returns the recursion groups of the observed call graph:
// strongly connected components with at least two members, plus
// single functions that call themselves. Members and groups are sorted
// by name for stable output.
func (g *Graph) Components() [][]namedepot.Name {
	g.mu.Lock()
	names, index := g.participants()
	dg := g.dense(names, index)
	selfCall := make(map[namedepot.Name]bool)
	for e := range g.counts {
		if e.Kind == EdgeCall && e.From == e.To && e.From != namedepot.NoName {
			selfCall[e.From] = true
		}
	}
	g.mu.Unlock()

	if len(names) == 0 {
		return nil
	}

	var out [][]namedepot.Name
	for _, comp := range graph.StrongComponents(dg) {
		if len(comp) == 1 && !selfCall[names[comp[0]]] {
			continue
		}
		members := make([]namedepot.Name, len(comp))
		for i, v := range comp {
			members[i] = names[v]
		}
		out = append(out, setutil.SortedFunc(members, func(a, b namedepot.Name) bool {
			return a.String() < b.String()
		}))
	}

	return setutil.SortedFunc(out, func(a, b []namedepot.Name) bool {
		return a[0].String() < b[0].String()
	})
}

// Acyclic reports whether the observed call graph has no recursion.
func (g *Graph) Acyclic() bool {
	g.mu.Lock()
	names, index := g.participants()
	dg := g.dense(names, index)
	g.mu.Unlock()

	if len(names) == 0 {
		return true
	}
	return graph.Acyclic(dg)
}

// TopOrder returns the participants in a topological order of the
// observed call graph (callers before callees), or false when recursion
// makes no such order exist.
func (g *Graph) TopOrder() ([]namedepot.Name, bool) {
	g.mu.Lock()
	names, index := g.participants()
	dg := g.dense(names, index)
	g.mu.Unlock()

	if len(names) == 0 {
		return nil, true
	}

	order, ok := graph.TopSort(dg)
	if !ok {
		return nil, false
	}
	out := make([]namedepot.Name, len(order))
	for i, v := range order {
		out[i] = names[v]
	}
	return out, true
}

// Reset drops all recorded edges.
func (g *Graph) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.counts = make(map[Edge]uint64)
	g.callees = make(map[namedepot.Name]mapset.Set[namedepot.Name])
	g.callers = make(map[namedepot.Name]mapset.Set[namedepot.Name])
}
