package main

import (
	"os"

	"github.com/tripstream-systems/tripstream/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
