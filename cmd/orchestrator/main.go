package main

import (
	"context"
	"fmt"
	"os"

	"orchestrator-gateway/cmd/orchestrator/commands"
)

// Preenchidos via ldflags no build.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	root := commands.NewRootCmd(commands.BuildInfo{Version: version, Commit: commit})
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
