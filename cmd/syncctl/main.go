package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/mokkoji/syncd/adapter/cli"
	cliConnection "github.com/mokkoji/syncd/adapter/cli/connection"
	cliSync "github.com/mokkoji/syncd/adapter/cli/sync"
	"github.com/mokkoji/syncd/internal/app"
	"github.com/mokkoji/syncd/pkg/config"
	"github.com/mokkoji/syncd/pkg/observability"
)

func main() {
	logger := observability.LoggerFromEnv()

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cli.SetLogger(logger)

	var cliApp *cli.App
	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		if cfg.IsDevelopment() {
			logger.Warn("failed to initialize container, running in limited mode", "error", err)
		} else {
			logger.Error("failed to initialize container", "error", err)
			os.Exit(1)
		}
	} else {
		defer container.Close()

		userID, err := uuid.Parse(cfg.UserID)
		if err != nil {
			logger.Error("invalid MOKKOJI_USER_ID", "error", err)
			os.Exit(1)
		}

		// Pulls queued by the CLI run on an in-process pool; Run exits
		// with the command.
		go func() {
			if err := container.Pool.Run(ctx); err != nil {
				logger.Error("worker pool stopped", "error", err)
			}
		}()

		cliApp = &cli.App{
			Dispatcher:    container.Dispatcher,
			Connections:   container.ConnectionRepo,
			Codec:         container.TokenCodec,
			Registry:      container.ProviderRegistry,
			Jobs:          container.Pool,
			CurrentUserID: userID,
		}
	}

	// Set the CLI app
	cli.SetApp(cliApp)

	// Register commands
	cli.AddCommand(cliConnection.Cmd)
	cli.AddCommand(cliSync.Cmd)

	// Execute CLI
	cli.Execute()
}
