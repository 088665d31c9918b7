// Package instrument rewrites Go source to record an execution trace.
//
// The rewrite is source-level and comment-preserving: files are parsed
// into decorated syntax trees, transformed, and printed back with the
// original comments attached. Per file the transform:
//
//  1. Hoists one interned function-name handle per function into a
//     package-level var, so the inserted hot-path calls never touch
//     strings.
//  2. Inserts EnterFunction plus a deferred LeaveFunction at the top of
//     every function body.
//  3. Inserts EnterBlock at the entry of the function body and of every
//     if/else/for/range/switch/select branch body, with block indices
//     assigned in source order starting at 0.
//  4. Adds the facade import under the fixed alias "taint".
//
// Files that already import the facade, _test.go files and testdata
// directories are skipped, so running the tool twice is safe. Function
// literals are left untouched: a closure body may run on another
// goroutine, where the enclosing function's identity would corrupt that
// goroutine's stack.
//
// Example transformation:
//
//	// INPUT:
//	func Sum(xs []int) int {
//		total := 0
//		for _, x := range xs {
//			total += x
//		}
//		return total
//	}
//
//	// OUTPUT:
//	func Sum(xs []int) int {
//		taint.EnterFunction(taintFn0)
//		defer taint.LeaveFunction(taintFn0)
//		taint.EnterBlock(taintFn0, 0)
//		total := 0
//		for _, x := range xs {
//			taint.EnterBlock(taintFn0, 1)
//			total += x
//		}
//		return total
//	}
//
//	var taintFn0 = taint.InternFunc("mypkg.Sum")
package instrument

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dave/dst/decorator"
	"github.com/pkg/errors"
)

// FacadeAlias is the local package alias used in instrumented code.
const FacadeAlias = "taint"

// Options controls the instrumentation run.
type Options struct {
	// FacadePath is the import path of the tracer facade package.
	FacadePath string

	// DryRun parses and transforms but writes nothing back.
	DryRun bool
}

// Stats summarizes an instrumentation run over one or more files.
type Stats struct {
	FilesVisited int // .go files considered
	FilesChanged int // files rewritten (or that would be, in dry-run)
	FilesSkipped int // already instrumented or nothing to do
	Functions    int // function declarations instrumented
	Blocks       int // basic blocks instrumented (incl. function entries)

	// Errors collects per-file failures. A failing file is left
	// untouched and the run continues with the rest.
	Errors []error
}

// Add folds one file's result into the run totals.
func (s *Stats) add(fi FileStats, changed bool) {
	s.FilesVisited++
	if changed {
		s.FilesChanged++
		s.Functions += fi.Functions
		s.Blocks += fi.Blocks
	} else {
		s.FilesSkipped++
	}
}

// FileStats counts what was instrumented in a single file.
type FileStats struct {
	Functions int
	Blocks    int
}

// Path instruments root, which may be a single .go file or a directory
// tree. Directory walks skip _test.go files and testdata, vendor and
// hidden directories.
func Path(root string, opts Options) (Stats, error) {
	var stats Stats

	info, err := os.Stat(root)
	if err != nil {
		return stats, errors.Wrapf(err, "could not stat %s", root)
	}

	if !info.IsDir() {
		fi, changed, err := File(root, opts)
		if err != nil {
			stats.FilesVisited++
			stats.Errors = append(stats.Errors, err)
			return stats, nil
		}
		stats.add(fi, changed)
		return stats, nil
	}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		fi, changed, err := File(path, opts)
		if err != nil {
			stats.FilesVisited++
			stats.Errors = append(stats.Errors, err)
			return nil
		}
		stats.add(fi, changed)
		return nil
	})
	if walkErr != nil {
		return stats, errors.Wrapf(walkErr, "walking %s", root)
	}
	return stats, nil
}

// skipDir reports whether a directory subtree holds no code to
// instrument.
func skipDir(name string) bool {
	if name == "testdata" || name == "vendor" {
		return true
	}
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

// File instruments a single source file in place (unless DryRun).
// Returns the file's counts and whether the file was (or would be)
// rewritten.
func File(path string, opts Options) (FileStats, bool, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return FileStats{}, false, errors.Wrapf(err, "could not read %s", path)
	}

	out, fi, changed, err := Source(src, opts.FacadePath)
	if err != nil {
		return FileStats{}, false, &FileError{Path: path, Err: err}
	}
	if !changed || opts.DryRun {
		return fi, changed, nil
	}

	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fi, true, errors.Wrapf(err, "could not write %s", path)
	}
	return fi, true, nil
}

// Source instruments one file's source text. Returns the rewritten
// text, the file's counts and whether anything changed. A file that
// already imports the facade or declares no function bodies comes back
// unchanged.
func Source(src []byte, facadePath string) ([]byte, FileStats, bool, error) {
	file, err := decorator.Parse(src)
	if err != nil {
		return nil, FileStats{}, false, errors.Wrap(err, "parse failed")
	}

	if importsPath(file, facadePath) {
		return src, FileStats{}, false, nil
	}

	tr := newTransformer(file, facadePath)
	fi := tr.apply()
	if fi.Functions == 0 {
		return src, FileStats{}, false, nil
	}

	var buf bytes.Buffer
	if err := decorator.Fprint(&buf, file); err != nil {
		return nil, fi, false, errors.Wrap(err, "print failed")
	}
	return buf.Bytes(), fi, true, nil
}
