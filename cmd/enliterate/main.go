// Package main is the entry point for the enliterate application.
package main

import (
	"os"

	"github.com/enliterate-io/enliterate/cmd/enliterate/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
