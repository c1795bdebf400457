package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"invoice-reconciler/internal/adapters/cli"
	"invoice-reconciler/internal/app"
	"invoice-reconciler/internal/config"
	"invoice-reconciler/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx, bootstrap); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// bootstrap logs to stderr so command output on stdout stays machine-readable.
func bootstrap(ctx context.Context, cfg *config.Config) (app.ApplicationService, func(), error) {
	lc := cfg.Logger
	if lc.OutputPath == "" || lc.OutputPath == "stdout" {
		lc.OutputPath = "stderr"
	}
	log, err := logger.New(lc)
	if err != nil {
		return nil, nil, err
	}

	rt, err := app.Bootstrap(ctx, cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, nil, err
	}
	return rt.Service, func() {
		rt.Close()
		_ = log.Sync()
	}, nil
}
