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

	"github.com/tickvault/tickvault/app/maintain"
	"github.com/tickvault/tickvault/pkg/utils"
)

func main() {
	cmd, err := maintain.ParseCommand(os.Args[1:], utils.Env("TICKVAULT_CONFIG", ""), os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := maintain.Initialize(ctx, cmd.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tickvault-maintain: %v\n", err)
		os.Exit(1)
	}

	runErr := app.Execute(ctx, cmd)
	if runErr != nil {
		app.Logger.Error("Maintenance command failed", zap.String("command", cmd.Name), zap.Error(runErr))
	}
	app.Close()

	if runErr != nil {
		os.Exit(1)
	}
}
