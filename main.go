package main

import (
	"os"

	"github.com/widyatma/loratag/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
