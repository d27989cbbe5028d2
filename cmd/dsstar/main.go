package main

import (
	"os"

	"github.com/Iron-Ham/dsstar/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
