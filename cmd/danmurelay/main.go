// Package main is the entry point for the danmurelay CLI.
//
// The relay can be embedded as a library (SDK) or run as a standalone binary
// with a configuration file. This CLI provides the standalone binary approach.
//
// Usage:
//
//	danmurelay serve -c relay.yaml    # Start the relay
//	danmurelay validate -c relay.yaml # Validate configuration
//	danmurelay version                # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "danmurelay",
	Short: "Relay live group chat to stream overlays",
	Long: `danmurelay relays live group chat ("danmu") to stream overlays.

It connects to a OneBot-style websocket event feed, keeps the latest message
from one group and serves it as JSON (pull) and over websocket or SSE (push).

Quick start:
  1. Create a config file (relay.yaml)
  2. Run: danmurelay serve -c relay.yaml
  3. Add http://localhost:2334/overlay to OBS as a browser source

Example config:
  upstream:
    url: ws://127.0.0.1:23333/
  target_group_id: 697375450
  listen:
    pull: ":2334"
    push: ":233"`,
	// No Run/RunE means this just shows help when called without subcommands
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
	Long:  `Print the version, commit hash, and build date of this danmurelay binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("danmurelay %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)
}
