package namedepot

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestInternIdempotent(t *testing.T) {
	Reset()

	a := Intern("main.parse")
	b := Intern("main.parse")
	c := Intern("main.main")

	if a != b {
		t.Errorf("Intern twice: got %d and %d, want equal handles", a, b)
	}
	if a == c {
		t.Errorf("distinct names share handle %d", a)
	}
	if got := Count(); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}
}

func TestInternEmpty(t *testing.T) {
	Reset()

	if got := Intern(""); got != NoName {
		t.Errorf("Intern(\"\") = %d, want NoName", got)
	}
	if got := NoName.String(); got != "" {
		t.Errorf("NoName.String() = %q, want \"\"", got)
	}
	if got := Count(); got != 0 {
		t.Errorf("Count() after empty intern = %d, want 0", got)
	}
}

func TestLookup(t *testing.T) {
	Reset()

	if _, ok := Lookup("main.worker"); ok {
		t.Error("Lookup before Intern reported a hit")
	}

	n := Intern("main.worker")
	got, ok := Lookup("main.worker")
	if !ok || got != n {
		t.Errorf("Lookup() = (%d, %v), want (%d, true)", got, ok, n)
	}
}

func TestStringRoundTrip(t *testing.T) {
	Reset()

	names := []string{"main.main", "pkg.Do", "pkg.(*T).Method", "x"}
	want := map[Name]string{}
	for _, s := range names {
		want[Intern(s)] = s
	}

	got := map[Name]string{}
	for n := range want {
		got[n] = n.String()
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestValid(t *testing.T) {
	Reset()

	n := Intern("main.f")
	tests := []struct {
		name string
		n    Name
		want bool
	}{
		{"NoName", NoName, true},
		{"issued", n, true},
		{"never issued", Name(9999), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.n.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConcurrentIntern(t *testing.T) {
	Reset()

	const goroutines = 8
	const names = 100

	results := make([]map[string]Name, goroutines)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			seen := make(map[string]Name, names)
			for i := 0; i < names; i++ {
				s := fmt.Sprintf("pkg.func%03d", i)
				seen[s] = Intern(s)
			}
			results[g] = seen
		}(g)
	}
	wg.Wait()

	if got := Count(); got != names {
		t.Fatalf("Count() = %d, want %d", got, names)
	}

	// Every goroutine must have observed the same handle per name.
	for g := 1; g < goroutines; g++ {
		if diff := cmp.Diff(results[0], results[g]); diff != "" {
			t.Errorf("goroutine %d disagrees with goroutine 0 (-0 +%d):\n%s", g, g, diff)
		}
	}
}

func TestReset(t *testing.T) {
	Reset()

	old := Intern("main.gone")
	Reset()

	if got := Count(); got != 0 {
		t.Errorf("Count() after Reset = %d, want 0", got)
	}
	if got := old.String(); got != "" {
		t.Errorf("dangling handle String() = %q, want \"\"", got)
	}
	if old.Valid() {
		t.Error("dangling handle still Valid after Reset")
	}
}
