// Command ratectl imports rate sheets and prices shipments against the
// rate engine database from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/amirphl/freightdesk/cmd/ratectl/commands"
)

func main() {
	if err := commands.NewRootCmd(commands.DefaultRuntime()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
