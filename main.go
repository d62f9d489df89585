package main

import (
	"os"

	"github.com/adalundhe/sabir/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
