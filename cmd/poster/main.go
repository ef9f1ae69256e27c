package main

import (
	"os"

	"jobposters/poster-go/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args))
}
