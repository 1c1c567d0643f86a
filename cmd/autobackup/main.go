package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/autobackup-watch/autobackup/internal/cli"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		fmt.Fprintf(os.Stderr, "\nReceived %v, saving state and stopping...\n", sig)
		cancel()
		// A second signal skips the graceful path.
		<-sigs
		os.Exit(130)
	}()

	cli.Execute(ctx)
}
