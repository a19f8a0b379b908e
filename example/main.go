package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/playerwatch"
	"github.com/jpalmerr/playerwatch/internal/fetcher"
)

func main() {
	// start mock profile server (see mock_server.go)
	go StartMockProfileServer(":9999")
	time.Sleep(100 * time.Millisecond)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	pages, err := fetcher.New(fetcher.Config{
		URLTemplate: "http://localhost:9999/players/" + fetcher.IDPlaceholder,
		SettleDelay: 500 * time.Millisecond,
		Headless:    true,
	}, logger)
	if err != nil {
		slog.Error("failed to create fetcher", "error", err)
		os.Exit(1)
	}

	// print notifications instead of sending them
	notifier := playerwatch.NotifierFunc(func(_ context.Context, text string) error {
		fmt.Printf("\n%s\n\n", text)
		return nil
	})

	monitor, err := playerwatch.New(pages, notifier,
		playerwatch.WithInterval(15*time.Second),
		playerwatch.WithLogger(logger),
		playerwatch.WithChangeCallback(func(e playerwatch.ChangeEvent) {
			logger.Info("status changed", "from", e.From.String(), "to", e.To.String())
		}),
	)
	if err != nil {
		slog.Error("failed to create monitor", "error", err)
		os.Exit(1)
	}
	defer monitor.Close()

	if _, err := monitor.SetIdentifier("12345"); err != nil {
		slog.Error("failed to set identifier", "error", err)
		os.Exit(1)
	}
	if err := monitor.Start(); err != nil {
		slog.Error("failed to start monitoring", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   playerwatch Demo                                    ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Watching player 12345 on a mock profile server      ║")
	fmt.Println("  ║   (http://localhost:9999/players/12345), every 15s.   ║")
	fmt.Println("  ║   The mock changes state every 20-60 seconds.         ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Needs Chromium installed (or downloadable).         ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
}
