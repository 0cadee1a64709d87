// Package main is the entry point for the intentguard CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"intentguard/pkg/protocol"
)

// Exit codes.
const (
	exitCodeFailure = 1 // I/O failures, trace drift, usage errors
	exitCodeDenied  = 2 // *protocol.AuthorizationError
	exitCodeConfig  = 3 // *protocol.ConfigError, *protocol.PatternError
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "intentguard: %v\n", err)
		stop()
		os.Exit(exitCode(err)) //nolint:gocritic // stop() already called
	}
}

// exitCode maps an error returned by a command to the process exit status.
func exitCode(err error) int {
	var (
		authErr    *protocol.AuthorizationError
		configErr  *protocol.ConfigError
		patternErr *protocol.PatternError
	)
	switch {
	case err == nil:
		return 0
	case errors.As(err, &authErr):
		return exitCodeDenied
	case errors.As(err, &configErr), errors.As(err, &patternErr):
		return exitCodeConfig
	default:
		return exitCodeFailure
	}
}
