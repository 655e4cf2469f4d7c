package main

import (
	"os"

	"metrika-etl/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
