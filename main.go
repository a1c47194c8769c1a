package main

import (
	"os"

	"github.com/squish-sh/squish/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
