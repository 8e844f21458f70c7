// Command dbgen generates deterministic synthetic data from templates.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/dbgen/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
