package basicblock

import (
	"testing"

	"github.com/kolkov/tainttracker/internal/taint/namedepot"
)

func TestBlockIDRoundTrip(t *testing.T) {
	fn := namedepot.Intern("main.parse")

	tests := []struct {
		name string
		fn   namedepot.Name
		idx  BBIndex
	}{
		{"zero block", fn, 0},
		{"small index", fn, 3},
		{"max index", fn, 0xFFFFFFFF},
		{"no function", namedepot.NoName, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := NewBlockID(tt.fn, tt.idx)
			if got := id.Func(); got != tt.fn {
				t.Errorf("Func() = %d, want %d", got, tt.fn)
			}
			if got := id.Index(); got != tt.idx {
				t.Errorf("Index() = %d, want %d", got, tt.idx)
			}
		})
	}
}

func TestBlockIDString(t *testing.T) {
	fn := namedepot.Intern("main.render")
	id := NewBlockID(fn, 12)

	if got, want := id.String(), "main.render@12"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestBlockKind(t *testing.T) {
	k := KindConditional | KindLoopEntry

	if !k.Is(KindConditional) {
		t.Error("Is(KindConditional) = false, want true")
	}
	if !k.Is(KindLoopEntry) {
		t.Error("Is(KindLoopEntry) = false, want true")
	}
	if k.Is(KindFuncEntry) {
		t.Error("Is(KindFuncEntry) = true, want false")
	}
	if got, want := k.String(), "conditional|loop_entry"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got, want := KindUnknown.String(), "unknown"; got != want {
		t.Errorf("KindUnknown.String() = %q, want %q", got, want)
	}
}

func TestTraceEqual(t *testing.T) {
	f := namedepot.Intern("main.f")
	g := namedepot.Intern("main.g")

	base := Trace{Func: f, Index: 2, EntryCount: 5}
	tests := []struct {
		name  string
		other Trace
		want  bool
	}{
		{"identical", Trace{Func: f, Index: 2, EntryCount: 5}, true},
		{"different function", Trace{Func: g, Index: 2, EntryCount: 5}, false},
		{"different index", Trace{Func: f, Index: 3, EntryCount: 5}, false},
		{"different entry count", Trace{Func: f, Index: 2, EntryCount: 6}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := base.Equal(tt.other); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTraceOrdering(t *testing.T) {
	f := namedepot.Intern("aaa.f")
	g := namedepot.Intern("bbb.g")

	// Ascending: function name first, then index, then entry count.
	ordered := []Trace{
		{Func: f, Index: 0, EntryCount: 0},
		{Func: f, Index: 0, EntryCount: 1},
		{Func: f, Index: 1, EntryCount: 0},
		{Func: g, Index: 0, EntryCount: 0},
	}

	for i := 0; i < len(ordered); i++ {
		for j := 0; j < len(ordered); j++ {
			got := ordered[i].Compare(ordered[j])
			want := 0
			if i < j {
				want = -1
			} else if i > j {
				want = 1
			}
			if got != want {
				t.Errorf("Compare(%v, %v) = %d, want %d", ordered[i], ordered[j], got, want)
			}
			if gotLess, wantLess := ordered[i].Less(ordered[j]), i < j; gotLess != wantLess {
				t.Errorf("Less(%v, %v) = %v, want %v", ordered[i], ordered[j], gotLess, wantLess)
			}
		}
	}
}

func TestTraceHashIgnoresFunction(t *testing.T) {
	f := namedepot.Intern("main.f")
	g := namedepot.Intern("main.g")

	a := Trace{Func: f, Index: 3, EntryCount: 7}
	b := Trace{Func: g, Index: 3, EntryCount: 7}

	// Same index and entry count collide across functions. That is the
	// documented contract, not an accident.
	if a.Hash() != b.Hash() {
		t.Errorf("Hash() differs across functions: %d vs %d", a.Hash(), b.Hash())
	}

	c := Trace{Func: f, Index: 3, EntryCount: 8}
	if a.Hash() == c.Hash() {
		t.Errorf("Hash() collides for different entry counts: %d", a.Hash())
	}
}

func TestTraceString(t *testing.T) {
	fn := namedepot.Intern("main.loop")
	tr := Trace{Func: fn, Index: 4, EntryCount: 17}

	if got, want := tr.String(), "main.loop@4#17"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestTraceID(t *testing.T) {
	fn := namedepot.Intern("main.f")
	tr := Trace{Func: fn, Index: 9, EntryCount: 100}

	id := tr.ID()
	if id.Func() != fn || id.Index() != 9 {
		t.Errorf("ID() = %s, want func %d index 9", id, fn)
	}
}
