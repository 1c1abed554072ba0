// Command survey-ingress loads the regional economic and household survey
// datasets into the ods schema and runs report queries against it.
package main

import (
	"os"
)

func main() {
	rootCmd := newRootCommand(os.Stdout, os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
