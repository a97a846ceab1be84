// Command stratactl inspects and queries a Strata demo database from
// the shell.
package main

import (
	"fmt"
	"os"

	"github.com/nexuscrm/strata/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
