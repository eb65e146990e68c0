package main

import (
	"os"

	"go-live-preview/cmd/go-live-preview/commands"
)

// Version information, set during build
var version = "dev"

func main() {
	commands.SetVersion(version)
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
