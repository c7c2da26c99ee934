package main

import (
	"os"

	"retireplan/cmd/retireplan-cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
