package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"devmirror/internal/daemon"
)

const (
	exitFailure        = 1
	exitAlreadyRunning = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err == nil || errors.Is(err, context.Canceled) {
		return 0
	}
	fmt.Fprintf(os.Stderr, "devmirror: %v\n", err)
	return exitCode(err)
}

func exitCode(err error) int {
	if errors.Is(err, daemon.ErrAlreadyRunning) {
		return exitAlreadyRunning
	}
	return exitFailure
}
