// Command gqlc compiles directive-annotated graph queries for relational
// and graph databases.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/gqlc/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Commands report their own results on stdout; the summary goes to
		// stderr so json output stays parseable.
		fmt.Fprintf(os.Stderr, "gqlc: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
