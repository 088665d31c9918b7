package instrument

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const facadePath = "github.com/kolkov/tainttracker/taint"

func TestSourceInstrumentsFunction(t *testing.T) {
	src := `package demo

func Add(a, b int) int {
	if a > b {
		return a + b
	}
	return b
}
`
	out, fi, changed, err := Source([]byte(src), facadePath)
	require.NoError(t, err)
	require.True(t, changed)

	assert.Equal(t, 1, fi.Functions)
	assert.Equal(t, 2, fi.Blocks, "function entry plus the if body")

	text := string(out)
	assert.Contains(t, text, `taint "github.com/kolkov/tainttracker/taint"`)
	assert.Contains(t, text, "taint.EnterFunction(taintFn0)")
	assert.Contains(t, text, "defer taint.LeaveFunction(taintFn0)")
	assert.Contains(t, text, "taint.EnterBlock(taintFn0, 0)")
	assert.Contains(t, text, "taint.EnterBlock(taintFn0, 1)")
	assert.Contains(t, text, `var taintFn0 = taint.InternFunc("demo.Add")`)
}

func TestSourceBlockIndicesInSourceOrder(t *testing.T) {
	src := `package demo

func Walk(xs []int, mode int) int {
	total := 0
	for i := 0; i < 10; i++ {
		total += i
	}
	for _, x := range xs {
		total += x
	}
	switch mode {
	case 1:
		total *= 2
	case 2:
		total *= 3
	}
	return total
}
`
	out, fi, changed, err := Source([]byte(src), facadePath)
	require.NoError(t, err)
	require.True(t, changed)

	assert.Equal(t, 1, fi.Functions)
	assert.Equal(t, 5, fi.Blocks, "entry, two loops, two cases")

	text := string(out)
	for idx := 0; idx < 5; idx++ {
		assert.Contains(t, text, "taint.EnterBlock(taintFn0, "+string(rune('0'+idx))+")")
	}
}

func TestSourceMethodsAndMultipleFunctions(t *testing.T) {
	src := `package demo

type Counter struct{ n int }

func (c *Counter) Inc() {
	c.n++
}

func reset(c *Counter) {
	c.n = 0
}
`
	out, fi, changed, err := Source([]byte(src), facadePath)
	require.NoError(t, err)
	require.True(t, changed)

	assert.Equal(t, 2, fi.Functions)

	text := string(out)
	assert.Contains(t, text, `var taintFn0 = taint.InternFunc("demo.Counter.Inc")`)
	assert.Contains(t, text, `var taintFn1 = taint.InternFunc("demo.reset")`)
	assert.Contains(t, text, "taint.EnterFunction(taintFn1)")
}

func TestSourceSkipsFuncLitBodies(t *testing.T) {
	src := `package demo

func Spawn(ch chan int) {
	go func() {
		for v := range ch {
			_ = v
		}
	}()
}
`
	out, fi, changed, err := Source([]byte(src), facadePath)
	require.NoError(t, err)
	require.True(t, changed)

	assert.Equal(t, 1, fi.Blocks, "the closure's range body must not be instrumented")
	assert.Equal(t, 1, strings.Count(string(out), "taint.EnterBlock("))
}

func TestSourceAlreadyInstrumentedUnchanged(t *testing.T) {
	src := `package demo

func Add(a, b int) int {
	return a + b
}
`
	first, _, changed, err := Source([]byte(src), facadePath)
	require.NoError(t, err)
	require.True(t, changed)

	second, _, changed, err := Source(first, facadePath)
	require.NoError(t, err)
	assert.False(t, changed, "a file importing the facade is skipped")
	assert.Equal(t, string(first), string(second))
}

func TestSourceNoFunctionsUnchanged(t *testing.T) {
	src := `package demo

const answer = 42
`
	_, fi, changed, err := Source([]byte(src), facadePath)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 0, fi.Functions)
}

func TestSourceParseError(t *testing.T) {
	_, _, _, err := Source([]byte("package demo\nfunc {"), facadePath)
	assert.Error(t, err)
}

func TestPathWalksTree(t *testing.T) {
	dir := t.TempDir()

	write := func(rel, content string) {
		t.Helper()
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	write("a.go", "package demo\n\nfunc A() {}\n")
	write("a_test.go", "package demo\n\nfunc TestA() {}\n")
	write("sub/b.go", "package sub\n\nfunc B() {}\n")
	write("testdata/ignored.go", "package ignored\n\nfunc C() {}\n")
	write("broken.go", "package demo\nfunc {")

	stats, err := Path(dir, Options{FacadePath: facadePath})
	require.NoError(t, err)

	assert.Equal(t, 3, stats.FilesVisited, "a.go, sub/b.go, broken.go")
	assert.Equal(t, 2, stats.FilesChanged)
	assert.Equal(t, 2, stats.Functions)
	require.Len(t, stats.Errors, 1)
	assert.Contains(t, stats.Errors[0].Error(), "broken.go")

	instrumented, err := os.ReadFile(filepath.Join(dir, "a.go"))
	require.NoError(t, err)
	assert.Contains(t, string(instrumented), "taint.EnterFunction(")

	untouched, err := os.ReadFile(filepath.Join(dir, "a_test.go"))
	require.NoError(t, err)
	assert.NotContains(t, string(untouched), "taint.")
}

func TestPathDryRunWritesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	src := "package demo\n\nfunc A() {}\n"
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	stats, err := Path(dir, Options{FacadePath: facadePath, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesChanged)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, src, string(after), "dry-run must leave the file untouched")
}
