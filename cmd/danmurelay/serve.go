package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/danmurelay"
	"github.com/jpalmerr/danmurelay/config"
	"github.com/jpalmerr/danmurelay/internal/mirror"
)

const (
	shutdownTimeout = 10 * time.Second
)

// newLogger creates the CLI logger from the log section of the config.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// serveCmd starts the relay.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay",
	Long: `Start the danmurelay relay.

The relay will:
  - Load configuration from the specified file (.yaml, .yml, .toml, .json, .jsonc)
  - Connect to the upstream event feed, reconnecting on failure
  - Serve the pull and push endpoints on both listen addresses
  - Mirror pushed records to NATS when nats.url is set

The relay runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  danmurelay serve -c relay.yaml
  danmurelay serve --config /etc/danmurelay/relay.toml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(os.Stderr, cfg.Log)
	logger.Info("config loaded",
		"upstream", cfg.Upstream.URL,
		"target_group", cfg.TargetGroupID,
		"pull_addr", cfg.Listen.Pull,
		"push_addr", cfg.Listen.Push,
	)

	opts := append(config.BuildOptions(cfg), danmurelay.WithLogger(logger))

	if cfg.NATS.Enabled() {
		m, err := mirror.NewNATS(cfg.NATS.URL, cfg.NATS.Subject, logger)
		if err != nil {
			return fmt.Errorf("failed to connect NATS mirror: %w", err)
		}
		defer func() {
			if err := m.Close(); err != nil {
				logger.Warn("nats mirror close failed", "error", err)
			}
		}()

		opts = append(opts, danmurelay.WithMirror(m.Publish))
		logger.Info("nats mirror enabled", "url", cfg.NATS.URL, "subject", m.Subject())
	}

	relay, err := danmurelay.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create relay: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start relay - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- relay.Start(ctx)
	}()

	// wait for relay to finish
	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("relay error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("relay error: %w", err)
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
