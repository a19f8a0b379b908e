package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/playerwatch"
	"github.com/jpalmerr/playerwatch/config"
	"github.com/jpalmerr/playerwatch/internal/command"
	"github.com/jpalmerr/playerwatch/internal/fetcher"
	"github.com/jpalmerr/playerwatch/internal/server"
	"github.com/jpalmerr/playerwatch/internal/settings"
	"github.com/jpalmerr/playerwatch/internal/telegram"
)

const (
	shutdownTimeout = 10 * time.Second
)

// runCmd starts the bot.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot",
	Long: `Run the bot until interrupted.

The bot will:
  - Load configuration and the stored player id
  - Answer chat commands (/run, /stop, /setID, /status, /lang, /info)
  - Check the player periodically while monitoring is active and report
    status changes to the configured chat
  - Serve the HTTP control API if api.addr is set

The bot runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  playerwatch run
  playerwatch run -c /etc/playerwatch/playerwatch.yaml --env-file /etc/playerwatch/.env`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireTelegram(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := newLogger(cfg.SlogLevel())
	logger.Info("config loaded",
		"interval", cfg.Interval.Duration().String(),
		"state_file", cfg.StateFile,
		"api_enabled", cfg.API.Addr != "",
	)

	state, err := settings.Open(cfg.StateFile)
	if err != nil {
		return fmt.Errorf("failed to open state file: %w", err)
	}

	pages, err := fetcher.New(config.BuildFetcherConfig(cfg), logger.With("component", "fetcher"))
	if err != nil {
		return fmt.Errorf("failed to create page fetcher: %w", err)
	}

	bot, err := telegram.New(config.BuildTelegramConfig(cfg), logger.With("component", "telegram"))
	if err != nil {
		return fmt.Errorf("failed to connect to telegram: %w", err)
	}

	monitor, err := playerwatch.New(pages, bot, config.BuildMonitorOptions(cfg, state, logger)...)
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}
	defer monitor.Close()

	dispatcher := command.NewDispatcher(monitor, state, cfg.Interval.Duration(), logger.With("component", "commands"))
	gateway := telegram.NewGateway(bot, dispatcher, config.BuildGatewayConfig(cfg), logger.With("component", "gateway"))

	if cfg.Autostart {
		autostart(monitor, logger)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if serverCfg, ok := config.BuildServerConfig(cfg, version); ok {
		api := server.New(monitor, serverCfg, logger.With("component", "api"))
		if err := api.Start(gctx); err != nil {
			return fmt.Errorf("failed to start api: %w", err)
		}
		g.Go(func() error {
			<-api.Done()
			return nil
		})
	}

	g.Go(func() error {
		return gateway.Run(gctx)
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- g.Wait()
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("bot error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("bot error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}

// autostart arms monitoring when an identifier was stored by a previous run.
func autostart(monitor *playerwatch.Monitor, logger *slog.Logger) {
	id, ok := monitor.Identifier()
	if !ok {
		logger.Warn("autostart skipped", "reason", "no player id stored")
		return
	}
	if err := monitor.Start(); err != nil {
		logger.Error("autostart failed", "error", err)
		return
	}
	logger.Info("monitoring started at startup", "identifier", id)
}
