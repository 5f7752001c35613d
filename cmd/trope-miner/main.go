// Command trope-miner mines literary tropes from long-form manuscripts.
package main

import (
	"fmt"
	"os"

	"github.com/ljramones/trope-miner/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
