package main

import (
	"os"

	"github.com/Siddarth2230/asset-labels/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
