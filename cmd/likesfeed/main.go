// Command likesfeed builds an Atom feed of popular articles that passed a
// like-count threshold.
//
// Usage:
//
//	likesfeed [flags]               Run the pipeline once
//	likesfeed --dry-run             Merge and render, write nothing
//	likesfeed history [item-id]     Show recorded runs or one item's likes
//	likesfeed version               Print version information
//
// Exit codes: 0 ok, 2 config, 3 upstream, 4 render/write, 5 state corrupt.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/abelbrown/likesfeed/internal/apperr"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "likesfeed: %v\n", err)
	}
	os.Exit(apperr.ExitCode(err))
}
