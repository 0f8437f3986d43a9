package main

import (
	"os"

	"github.com/adalundhe/varelim/cmd"
)

func main() {
	os.Exit(cmd.ExitCode(cmd.Execute()))
}
