package main

// ---------------------------------------------------------------------------
// helpers.go — color and error helpers shared by the commands
// ---------------------------------------------------------------------------

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

var (
	bold   = color.New(color.Bold).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
)

// errorf prints an error to stderr and exits non-zero.
func errorf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, red("error: ")+format+"\n", args...)
	os.Exit(1)
}

// envConfig lets FUSEID_CONFIG override the default config path when the
// flag was left at its default.
func envConfig(flagValue string) string {
	if flagValue != defaultConfigPath {
		return flagValue
	}
	if env := os.Getenv("FUSEID_CONFIG"); env != "" {
		return env
	}
	return flagValue
}

const defaultConfigPath = "configs/fuseid.yaml"
