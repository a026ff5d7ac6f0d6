package main

import (
	"os"

	"github.com/patchwatch/patchwatch/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
