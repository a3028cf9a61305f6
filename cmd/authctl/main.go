// Command authctl is the gatekeeper command-line tool. Client commands talk
// to a running server over gRPC; operator commands (sweep, migrate) work on
// the database directly.
package main

import (
	"fmt"
	"os"

	"github.com/dmitrijs2005/gatekeeper/internal/client/cli"
)

func main() {
	app := cli.NewApp(os.Stdin, os.Stdout)
	root := app.NewRootCommand(sweepCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
