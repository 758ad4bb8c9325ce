package main

import (
	"fmt"
	"os"
)

// Version is set at build time via ldflags.
var Version = "v0.1.0"

func main() {
	args := os.Args[1:]

	if len(args) > 0 {
		switch args[0] {
		case "version", "--version":
			fmt.Printf("incident-gateway %s\n", Version)
			return
		case "help":
			printServeHelp()
			return
		case "serve":
			args = args[1:]
		}
	}

	runServeCommand(args)
}
