// Command qcsched schedules QC validation of participant visit records.
package main

import (
	"fmt"
	"os"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
