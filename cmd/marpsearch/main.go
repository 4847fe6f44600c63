// marpsearch is the command-line entry point for the regulatory
// document retrieval engine.
package main

import (
	"fmt"
	"os"

	"github.com/marpdocs/marpsearch/cmd/marpsearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
