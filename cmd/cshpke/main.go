package main

import (
	"os"

	"github.com/TheusHen/cshpke/cmd/cshpke/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
