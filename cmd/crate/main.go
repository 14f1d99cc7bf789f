// Command crate manages a replicated music catalog.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/crate/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
