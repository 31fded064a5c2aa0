package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	r := NewRunner(RunnerOpts{Output: os.Stdout, LogOutput: os.Stderr})
	if err := r.Command().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "deckhand: %v\n", err)
		return 1
	}
	return 0
}
