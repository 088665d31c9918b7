package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/kolkov/tainttracker/cmd/tainttracker/instrument"
	"github.com/kolkov/tainttracker/cmd/tainttracker/runtime"
)

// instrumentCommand implements `tainttracker instrument`.
func instrumentCommand(args []string) {
	flags := flag.NewFlagSet("instrument", flag.ExitOnError)
	dryRun := flags.Bool("dry-run", false, "report what would change without writing")
	verbose := flags.Bool("v", false, "print per-run statistics")
	facade := flags.String("facade", "", "facade import path override (default: auto-detect)")
	_ = flags.Parse(args)

	if flags.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: tainttracker instrument [-dry-run] [-v] [-facade path] <file-or-dir>")
		os.Exit(1)
	}
	target := flags.Arg(0)

	opts := instrument.Options{
		FacadePath: *facade,
		DryRun:     *dryRun,
	}
	if opts.FacadePath == "" {
		opts.FacadePath = runtime.FacadePath(target)
	}

	stats, err := instrument.Path(target, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	for _, ferr := range stats.Errors {
		fmt.Fprintf(os.Stderr, "Error: %v\n", ferr)
	}

	if *verbose || *dryRun {
		mode := "instrumented"
		if *dryRun {
			mode = "would instrument"
		}
		fmt.Printf("%s %d of %d files (%d skipped): %d functions, %d blocks\n",
			mode, stats.FilesChanged, stats.FilesVisited, stats.FilesSkipped,
			stats.Functions, stats.Blocks)
		fmt.Printf("facade import: %s\n", opts.FacadePath)
		if stats.FilesChanged > 0 {
			fmt.Printf("add to main():\n%s\n", runtime.InitSnippet())
		}
	}

	if len(stats.Errors) > 0 {
		os.Exit(1)
	}
}
