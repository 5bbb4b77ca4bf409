// Package main is the entry point for the longjob CLI.
// The CLI is the developer terminal tool for interacting with the longjob API.
package main

import (
	"os"

	"longjob/cmd/jobctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
