package main

import (
	"os"

	"github.com/spawnagents/spawn-sdk-go/internal/cli"

	"github.com/fatih/color"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}
