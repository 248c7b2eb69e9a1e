// Package main is the entry point for the fedwallet CLI.
package main

import (
	"os"

	"github.com/mrz1836/fedwallet/internal/cli"
)

// Set by -ldflags at build time.
//
//nolint:gochecknoglobals // link-time variables
var (
	version string
	commit  string
	date    string
)

func main() {
	cli.SetBuildInfo(cli.BuildInfo{Version: version, Commit: commit, Date: date})
	if err := cli.Execute(); err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
