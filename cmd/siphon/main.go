// Package main provides the siphon command line tool. It opens a page in a
// headless browser to collect the cookies the site sets, then hands them to
// yt-dlp to download the page's media.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/entrhq/siphon/pkg/types"
)

const version = "0.1.0"

func main() {
	// Create context with signal handling
	ctx, cancel := context.WithCancel(context.Background())

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nShutting down gracefully...")
		cancel()
	}()

	if err := newCLI(ctx).Run(os.Args); err != nil {
		cancel()
		fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("error:"), err)
		os.Exit(exitCode(err))
	}
	cancel()
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch types.KindOf(err) {
	case types.KindInvalidInput:
		return 2
	case types.KindCancelled:
		return 130
	}
	return 1
}
