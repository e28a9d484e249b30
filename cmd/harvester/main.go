package main

import (
	"fmt"
	"os"

	"github.com/Sternrassler/danbooru-harvester/internal/cli"
)

// Version information set via ldflags at build time.
var (
	version   string
	gitCommit string
	buildDate string
)

func main() {
	cli.SetVersionInfo(version, gitCommit, buildDate)

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
