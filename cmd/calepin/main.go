// Package main provides the entry point for the calepin CLI.
package main

import (
	"os"

	"github.com/calepin/calepin/cmd/calepin/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
