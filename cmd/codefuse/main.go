package main

import (
	"os"

	"codefuse/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
