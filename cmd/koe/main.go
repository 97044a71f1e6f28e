// Command koe is the operator CLI for the koe voice command daemon.
//
// It manages the same data directory koed serves from: voice profile
// enrollment and verification, the voice command list, pipeline
// settings, and the detection history. Stop koed before running
// commands that write to the store; the Badger database takes a single
// writer.
package main

import (
	"os"

	"github.com/koelabs/koe/cmd/koe/commands"
	"github.com/koelabs/koe/pkg/cli"
)

func main() {
	if err := commands.Execute(); err != nil {
		cli.PrintError("%v", err)
		os.Exit(1)
	}
}
