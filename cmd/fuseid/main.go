package main

// ---------------------------------------------------------------------------
// main.go — command dispatcher for the fuseid CLI
//
// Command implementations live in their own files (cmd_*.go); shared
// helpers are in helpers.go.
// ---------------------------------------------------------------------------

import (
	"fmt"
	"os"
)

var (
	version   = "0.3.0"
	commit    = "dev"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--version", "-V", "version":
			printVersion()
			os.Exit(0)
		case "--help", "-h", "help":
			printUsage(os.Stdout)
			os.Exit(0)
		}
	}

	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(0)
	}

	subcmd := os.Args[1]
	args := os.Args[2:]

	switch subcmd {
	case "up":
		cmdUp(args)
	case "rules":
		cmdRules(args)
	case "config":
		cmdConfig(args)
	default:
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n\n", subcmd)
		printUsage(os.Stderr)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("fuseid %s (commit %s, built %s)\n", version, commit, buildDate)
}

func printUsage(w *os.File) {
	fmt.Fprintf(w, `fuseid — hybrid IDS alert fusion engine

Usage:
  fuseid <command> [flags]

Commands:
  up        Start the fusion engine (bus, pipeline, correlator, sinks)
  rules     List the loaded correlation rules
  config    Show or write the configuration file
  version   Print version information

Run "fuseid <command> -h" for command flags.
`)
}
