package main

import (
	"os"

	"github.com/ndaru/kirana/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
