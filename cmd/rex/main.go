package main

import (
	"os"

	"github.com/grovetools/rex/cli"
	"github.com/grovetools/rex/cmd"
)

func main() {
	os.Exit(cli.Execute(cmd.NewRootCmd()))
}
