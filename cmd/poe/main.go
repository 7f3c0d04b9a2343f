package main

import (
	"os"

	"github.com/user/poe/internal/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
