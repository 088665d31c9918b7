package event

import (
	"testing"

	"github.com/kolkov/tainttracker/internal/taint/basicblock"
	"github.com/kolkov/tainttracker/internal/taint/label"
	"github.com/kolkov/tainttracker/internal/taint/namedepot"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		k    Kind
		want string
	}{
		{KindNone, "none"},
		{KindBlockEntry, "block_entry"},
		{KindFunctionCall, "function_call"},
		{KindFunctionReturn, "function_return"},
		{KindTaintAccess, "taint_access"},
		{Kind(200), "invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.k.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRefValid(t *testing.T) {
	if NoRef.Valid() {
		t.Error("NoRef.Valid() = true, want false")
	}
	if !Ref(0).Valid() {
		t.Error("Ref(0).Valid() = false, want true")
	}
	if !Ref(41).Valid() {
		t.Error("Ref(41).Valid() = false, want true")
	}
}

func TestEventBB(t *testing.T) {
	fn := namedepot.Intern("main.f")
	e := Event{
		Kind:    KindBlockEntry,
		Func:    fn,
		Block:   4,
		Entries: 2,
	}

	got := e.BB()
	want := basicblock.Trace{Func: fn, Index: 4, EntryCount: 2}
	if !got.Equal(want) {
		t.Errorf("BB() = %v, want %v", got, want)
	}
}

func TestEventString(t *testing.T) {
	fn := namedepot.Intern("main.work")

	tests := []struct {
		name string
		e    Event
		want string
	}{
		{
			"block entry",
			Event{Kind: KindBlockEntry, Func: fn, Block: 1, Entries: 3},
			"block_entry main.work@1#3",
		},
		{
			"call",
			Event{Kind: KindFunctionCall, Func: fn},
			"function_call main.work",
		},
		{
			"return",
			Event{Kind: KindFunctionReturn, Func: fn},
			"function_return main.work",
		},
		{
			"taint access",
			Event{Kind: KindTaintAccess, Func: fn, Label: 9, Access: label.AccessCmp},
			"taint_access label=9 cmp",
		},
		{
			"unset",
			Event{},
			"none",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.e.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
