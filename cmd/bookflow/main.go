package main

import (
	"os"

	"bookflow/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
