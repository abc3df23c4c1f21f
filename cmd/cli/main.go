package main

import (
	"os"

	"komgadl/cmd/cli/command"
)

func main() {
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}
