package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/danmurelay/config"
)

// validateCmd validates a config file without starting the relay.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a danmurelay configuration file without starting the relay.

This command parses the file, expands environment variables, applies
defaults and validates all fields. It's useful for CI/CD pipelines or
pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  danmurelay validate -c relay.yaml
  danmurelay validate --config /etc/danmurelay/relay.toml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	natsMirror := "disabled"
	if cfg.NATS.Enabled() {
		natsMirror = fmt.Sprintf("%s (subject %s)", cfg.NATS.URL, cfg.NATS.Subject)
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Upstream:           %s\n", cfg.Upstream.URL)
	fmt.Printf("  Reconnect delay:    %s\n", cfg.Upstream.ReconnectDelay.Duration())
	fmt.Printf("  Target group:       %d\n", cfg.TargetGroupID)
	fmt.Printf("  Broadcast interval: %s\n", cfg.BroadcastInterval.Duration())
	fmt.Printf("  Listen:             pull %s, push %s\n", cfg.Listen.Pull, cfg.Listen.Push)
	fmt.Printf("  Log:                %s (%s)\n", cfg.Log.Level, cfg.Log.Format)
	fmt.Printf("  NATS mirror:        %s\n", natsMirror)

	return nil
}
