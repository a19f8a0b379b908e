package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jpalmerr/playerwatch"
	"github.com/jpalmerr/playerwatch/config"
	"github.com/jpalmerr/playerwatch/internal/fetcher"
	"github.com/jpalmerr/playerwatch/internal/settings"
)

// checkCmd fetches one status without touching the stored state.
var checkCmd = &cobra.Command{
	Use:   "check [player-id]",
	Short: "Fetch a player's current status once",
	Long: `Render a player's profile once and print the status it shows.

Without an argument the player id stored by the bot is used. Nothing is
stored and no message is sent.

Example:
  playerwatch check 12345
  playerwatch check -c playerwatch.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

var (
	labelStyle   = lipgloss.NewStyle().Faint(true)
	onlineStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	offlineStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
)

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	id, err := checkIdentifier(cfg, args)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.SlogLevel())
	pages, err := fetcher.New(config.BuildFetcherConfig(cfg), logger.With("component", "fetcher"))
	if err != nil {
		return fmt.Errorf("failed to create page fetcher: %w", err)
	}

	// check never notifies
	discard := playerwatch.NotifierFunc(func(context.Context, string) error { return nil })
	monitor, err := playerwatch.New(pages, discard, config.BuildMonitorOptions(cfg, nil, logger)...)
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}
	defer monitor.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	status, err := monitor.Probe(ctx, id)
	out := cmd.OutOrStdout()
	printCheck(out, isTerminal(out), id, status, time.Since(start))
	if err != nil {
		return fmt.Errorf("check failed: %w", err)
	}
	return nil
}

// checkIdentifier picks the argument, or else the stored identifier.
func checkIdentifier(cfg *config.Config, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}

	state, err := settings.Open(cfg.StateFile)
	if err != nil {
		return "", fmt.Errorf("failed to open state file: %w", err)
	}
	id, ok, err := state.LoadIdentifier()
	if err != nil {
		return "", fmt.Errorf("failed to read state file: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("no player id given and none stored in %s: %w", state.Path(), playerwatch.ErrNoIdentifier)
	}
	return id, nil
}

func printCheck(w io.Writer, styled bool, id string, status playerwatch.Status, took time.Duration) {
	label := func(s string) string { return s }
	value := func(s string) string { return s }
	if styled {
		label = func(s string) string { return labelStyle.Render(s) }
		switch status.Kind {
		case playerwatch.KindOnline:
			value = func(s string) string { return onlineStyle.Render(s) }
		case playerwatch.KindOffline, playerwatch.KindOfflineSeen:
			value = func(s string) string { return offlineStyle.Render(s) }
		default:
			value = func(s string) string { return errorStyle.Render(s) }
		}
	}

	fmt.Fprintf(w, "%s %s\n", label("Player:"), id)
	fmt.Fprintf(w, "%s %s\n", label("Status:"), value(status.String()))
	fmt.Fprintf(w, "%s %s\n", label("Took:  "), took.Round(100*time.Millisecond))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
