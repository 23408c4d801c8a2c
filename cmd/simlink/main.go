package main

import (
	"os"

	"github.com/simlink-go/simlink/cmd/simlink/commands"
)

func main() {
	err := commands.GetRootCommand().Execute()
	if err != nil {
		os.Exit(1)
	}
}
