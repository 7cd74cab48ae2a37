// The main package for the subindex executable.
package main

import (
	"github.com/pineapple-index/subindex/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
