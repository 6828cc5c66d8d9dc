// Command mcg records and queries the provenance of computational
// materials science results.
package main

import (
	"context"
	"os"

	"github.com/roach88/mcg/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
