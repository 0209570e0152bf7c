// main is the entry point for the repoflux CLI.
package main

import (
	"fmt"
	"os"

	"github.com/repoflux/repoflux/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
