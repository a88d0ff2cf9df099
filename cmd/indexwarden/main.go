// Package main provides the entry point for the indexwarden CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/indexwarden/cmd/indexwarden/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
