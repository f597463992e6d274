package main

import (
	"os"

	"github.com/arbiterhq/arbiter/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
