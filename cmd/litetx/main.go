package main

import (
	"os"

	"github.com/ssargent/litetx/cmd/litetx/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
