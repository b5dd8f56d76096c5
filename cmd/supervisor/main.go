package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/roman-kulish/drone-supervisor/cmd/supervisor/app"
)

// exitStartupFailure is the exit code used when the supervisor could not start
const exitStartupFailure = -1

func main() {
	var logLevel slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: &logLevel}))

	var configPath string
	flags := pflag.NewFlagSet("supervisor", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", "", "Path to the configuration file")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		logger.Error(err.Error())
		os.Exit(exitStartupFailure)
	}

	if configPath == "" {
		logger.Error("no configuration file provided")
		flags.Usage()
		os.Exit(exitStartupFailure)
	}

	config, err := app.LoadConfig(configPath)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to load configuration file: %s", err.Error()), slog.String("path", configPath))
		os.Exit(exitStartupFailure)
	}

	logLevel.Set(config.Settings.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if _, err = app.Run(ctx, config, logger); err != nil {
		logger.Error(err.Error())

		cancel()

		var startupErr *app.StartupError
		if errors.As(err, &startupErr) {
			os.Exit(exitStartupFailure)
		}
		os.Exit(1)
	}
}
