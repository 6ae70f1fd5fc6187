// The main package for the siftcrawl executable.
package main

import (
	"github.com/siftcrawl/siftcrawl/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
