package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"match-chat/internal"
	"match-chat/internal/app"

	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

const (
	exitOK = iota
	exitRuntime
	exitConfig
)

type configError struct{ err error }

func (e configError) Error() string { return e.err.Error() }
func (e configError) Unwrap() error { return e.err }

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		var cfgErr configError
		if stderrors.As(err, &cfgErr) {
			os.Exit(exitConfig)
		}
		os.Exit(exitRuntime)
	}
	os.Exit(exitOK)
}

// run loads the configuration and serves until SIGINT or SIGTERM.
// Returning instead of exiting lets the deferred cleanups run.
func run() error {
	// A missing .env file is fine, the environment may already be set.
	_ = godotenv.Load()

	config, err := internal.Load()
	if err != nil {
		return configError{err}
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(config, log)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}
