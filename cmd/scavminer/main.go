package main

import (
	"github.com/scavtools/scavminer/cmd/scavminer/commands"
)

// Minimal entrypoint that delegates to the Cobra CLI defined in cmd/scavminer/commands.
func main() {
	commands.Execute()
}
