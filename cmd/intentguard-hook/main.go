// Binary intentguard-hook is an agent PreToolUse/PostToolUse hook that runs
// file-writing tool calls through the intent guard.
//
// PreToolUse authorizes the write against the cited intent and stages the
// file's current content. PostToolUse classifies the applied change and
// appends a trace record.
//
// Protocol: reads JSON from stdin, writes JSON to stdout.
//   - Allow: {}
//   - Deny:  {"permissionDecision":"deny","permissionDecisionReason":"Blocked by PreHook: ..."}
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"intentguard/internal/app"
	"intentguard/pkg/config"
)

func main() {
	logger := app.NewLogger(os.Stderr, os.Getenv(config.EnvVerbose) != "")
	h, err := NewHandler(openApp(logger), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "intentguard-hook: %v\n", err)
		writeOut(denyJSON(err.Error()))
		return
	}

	input, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "intentguard-hook: failed to read stdin: %v\n", err)
		// The payload may have been a write; deny.
		writeOut(denyJSON("cannot read hook payload"))
		return
	}

	writeOut(h.Handle(context.Background(), input))
}

// openApp returns an opener that wires the guard for a project root.
func openApp(logger *slog.Logger) Opener {
	return func(ctx context.Context, root string) (*app.App, error) {
		return app.Open(ctx, root, app.WithLogger(logger), app.WithSource("hook"))
	}
}

// writeOut writes data to stdout, logging any write error to stderr.
func writeOut(data []byte) {
	if _, err := os.Stdout.Write(data); err != nil {
		fmt.Fprintf(os.Stderr, "intentguard-hook: stdout write error: %v\n", err)
	}
}
