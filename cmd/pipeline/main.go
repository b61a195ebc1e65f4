// Package main provides the pipeline CLI: single post runs and on-demand
// price maintenance without the HTTP server.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
