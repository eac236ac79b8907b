package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/tickvault/tickvault/app/ingest"
	"github.com/tickvault/tickvault/pkg/utils"
)

func main() {
	opts, err := ingest.ParseOptions(os.Args[1:], utils.Env("TICKVAULT_CONFIG", ""), os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := ingest.Initialize(ctx, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tickvault-ingest: %v\n", err)
		os.Exit(1)
	}

	_, runErr := app.Run(ctx)
	if runErr != nil {
		app.Logger.Error("Ingest aborted", zap.Error(runErr))
	}
	app.Close()

	if runErr != nil {
		os.Exit(1)
	}
}
