package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"

	"github.com/arcticwatch/arcticwatch/cmd"
)

const version = "0.1.0"

func main() {
	root := cmd.NewRootCmd()

	// fang adds completions, manpages and --version, and cancels the command
	// context on interrupt so a running check can release its browser.
	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, os.Kill),
	); err != nil {
		os.Exit(1)
	}
}
