// Package main implements the tainttracker CLI tool.
//
// The tainttracker tool inserts execution-trace instrumentation into Go
// source code. It works by:
//
//  1. Parsing Go source files with comment-preserving ASTs
//  2. Hoisting one interned function-name handle per function
//  3. Inserting EnterFunction/LeaveFunction/EnterBlock calls at
//     function and basic-block boundaries
//
// Usage:
//
//	tainttracker instrument ./...   # Instrument source in place
//	tainttracker instrument -dry-run ./pkg
//
// The instrumented program links against the tracer facade package and
// records a queryable trace while it runs.
package main

import (
	"fmt"
	"os"

	"github.com/kolkov/tainttracker/taint"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "instrument":
		instrumentCommand(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("tainttracker version %s\n", taint.Version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`tainttracker - execution-trace instrumenter

USAGE:
    tainttracker <command> [arguments]

COMMANDS:
    instrument    Insert trace instrumentation into Go source
    version       Show version information
    help          Show this help message

EXAMPLES:
    # Instrument a package tree in place
    tainttracker instrument ./internal/parser

    # Show what would change without writing anything
    tainttracker instrument -dry-run -v ./cmd/server

    # Instrument a single file
    tainttracker instrument main.go

ABOUT:
    tainttracker rewrites Go source to record an execution trace: one
    event per function entry, function return and basic-block entry,
    recorded through the tracer runtime this repository provides. The
    taint-propagation layer of the embedding system reports label
    touches against the same trace, giving "which code ran because of
    which input bytes" without a custom toolchain.

    Files that already import the tracer facade, _test.go files and
    testdata directories are skipped, so instrumenting twice is safe.

FOR MORE INFORMATION:
    Repository: https://github.com/kolkov/tainttracker
    Documentation: https://pkg.go.dev/github.com/kolkov/tainttracker/taint

`)
}
