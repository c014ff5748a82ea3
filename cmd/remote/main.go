// Command remote drives a running coordinator from the command line.
//
// It is both a remote control and a passive display: send commands select
// content and lines, and watch prints every frame the coordinator pushes.
//
// Configuration:
//   - LECTERN_REMOTE_URL: coordinator WebSocket URL (default: "ws://localhost:8080/ws")
//   - LECTERN_REMOTE_HOST: host id this remote's settings are keyed by
//
// Example usage:
//
//	remote bani japji
//	remote line --order 12
//	remote main-line l7
//	remote settings '{"local": {"theme": "dark"}}'
//	remote watch --events line,viewedLines
//	remote set-status "starting at 7pm"
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Fatalf("remote: %v", err)
	}
}
