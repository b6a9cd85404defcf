package main

import (
	"os"

	"github.com/p-blackswan/synapse/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
