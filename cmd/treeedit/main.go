// Command treeedit is the entrypoint for the CLI and JSON-RPC server,
// wiring configuration loading into the cobra command tree.
package main

import (
	"fmt"
	"os"

	"github.com/oxhq/treeedit/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
