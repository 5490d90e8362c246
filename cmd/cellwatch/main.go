// Command cellwatch is the health monitor and web restarter for a
// compute-cell deployment.
package main

import (
	"os"

	"github.com/HerbHall/cellwatch/internal/cli"
)

func main() {
	os.Exit(cli.Execute(cli.NewRootCommand(), os.Args[1:], os.Stderr))
}
