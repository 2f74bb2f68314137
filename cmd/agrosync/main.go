// Package main is the entry point for the agrosync CLI.
package main

import (
	"os"

	"github.com/mrz1836/agrosync/internal/cli"
)

// Set by the linker.
//
//nolint:gochecknoglobals // Build metadata injected with -ldflags
var (
	version = ""
	commit  = ""
	date    = ""
)

func main() {
	cli.SetBuildInfo(cli.BuildInfo{Version: version, Commit: commit, Date: date})
	if err := cli.Execute(); err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
