package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

var version = "dev" // Set via ldflags: -X main.version=v1.0.0

func main() {
	// Set up root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := signalContext()
	defer cancel()

	if err := newRootCmd(nil).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "edgeevents: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

// signalContext returns a context that is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
