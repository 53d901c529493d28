package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"

	"github.com/tis24dev/stackrestore/internal/cli"
	"github.com/tis24dev/stackrestore/internal/tui"
	"github.com/tis24dev/stackrestore/internal/types"
)

func main() {
	os.Exit(run())
}

var closeStdinOnce sync.Once

func run() int {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "panic: %v\n%s\n", r, debug.Stack())
			os.Exit(types.ExitPanicError.Int())
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SIGINT/SIGTERM cancel the run. Stages past the service stop finish
	// on their own context.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			fmt.Fprintf(os.Stderr, "\nReceived signal %v, stopping...\n", sig)
			cancel()
			closeStdinOnce.Do(func() {
				if file := os.Stdin; file != nil {
					_ = file.Close()
				}
			})
		case <-ctx.Done():
		}
	}()

	tui.SetAbortContext(ctx)

	return cli.Execute(ctx, os.Args[1:], cli.Streams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr})
}
