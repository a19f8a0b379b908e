// Package main is the entry point for the playerwatch CLI.
//
// Usage:
//
//	playerwatch run -c playerwatch.yaml      # Run the bot until interrupted
//	playerwatch check 12345                  # Fetch one player's status once
//	playerwatch validate -c playerwatch.yaml # Validate configuration
//	playerwatch version                      # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/playerwatch/config"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "playerwatch",
	Short: "Watch a BattleMetrics player and report status changes to Telegram",
	Long: `playerwatch periodically renders a player's BattleMetrics profile,
works out whether they are online, and sends a Telegram message whenever
the status changes.

Quick start:
  1. Put TELEGRAM_TOKEN and TELEGRAM_CHAT_ID in .env
  2. Run: playerwatch run
  3. In the chat, send /setID <player id> and then /run

Example config:
  interval: 2m
  telegram:
    chat_id: 123456789
  api:
    addr: 127.0.0.1:8080`,
	SilenceUsage: true,
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this playerwatch binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "playerwatch %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "playerwatch.yaml", "path to config file (defaults apply if it does not exist)")
	rootCmd.PersistentFlags().String("env-file", ".env", "path to a KEY=value file loaded into the environment")

	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads the env file and then the config file named by the
// persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := config.LoadEnvFile(envFile); err != nil {
		return nil, err
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger creates a JSON logger for CLI use.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}
