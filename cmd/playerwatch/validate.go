package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// validateCmd validates a config file without starting the bot.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a playerwatch configuration without starting the bot.

This command loads the env file, parses the YAML, expands environment
variables, and validates all fields. It's useful for CI/CD pipelines or
pre-deployment checks. Missing Telegram credentials are reported but are
not an error here; run refuses to start without them.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  playerwatch validate -c playerwatch.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	telegramStatus := "configured"
	if err := cfg.RequireTelegram(); err != nil {
		telegramStatus = "not configured: " + err.Error()
	}
	apiStatus := "disabled"
	if cfg.API.Addr != "" {
		apiStatus = cfg.API.Addr
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Interval:      %s\n", cfg.Interval.Duration())
	fmt.Fprintf(out, "  Check timeout: %s\n", cfg.CheckTimeout.Duration())
	fmt.Fprintf(out, "  Page:          %s\n", cfg.Page.URLTemplate)
	fmt.Fprintf(out, "  State file:    %s\n", cfg.StateFile)
	fmt.Fprintf(out, "  Autostart:     %t\n", cfg.Autostart)
	fmt.Fprintf(out, "  Telegram:      %s\n", telegramStatus)
	fmt.Fprintf(out, "  API:           %s\n", apiStatus)

	return nil
}
