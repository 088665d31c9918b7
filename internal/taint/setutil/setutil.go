// Package setutil provides small generic helpers for producing sorted
// snapshots of maps and sets.
//
// Query surfaces hand out copies, never views into live state, and
// deterministic ordering keeps summaries and tests stable. These helpers
// centralize the copy+sort step.
package setutil

import (
	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/exp/constraints"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// SortedKeys returns the keys of m as a fresh sorted slice.
func SortedKeys[K constraints.Ordered, V any](m map[K]V) []K {
	ks := maps.Keys(m)
	slices.Sort(ks)
	return ks
}

// Sorted returns the elements of s as a fresh sorted slice.
func Sorted[T constraints.Ordered](s mapset.Set[T]) []T {
	out := s.ToSlice()
	slices.Sort(out)
	return out
}

// SortedFunc returns a sorted copy of in, ordered by less.
func SortedFunc[E any](in []E, less func(a, b E) bool) []E {
	out := slices.Clone(in)
	slices.SortFunc(out, less)
	return out
}
