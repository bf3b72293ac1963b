// Package main is the entry point for mosaicctl.
// The CLI is the operator terminal tool for the mosaic controller.
package main

import (
	"os"

	"mosaic/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
