// Package cli wires the demo command, following the donor's
// internal/cli/module.go shape: an fx.Module that provides a cobra
// command and invokes a binder that wires it up and executes a root
// command. Adapted from running a trading strategy off a connector
// registry to opening one streamconn.Connection and printing its
// lifecycle events.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/lumenmarkets/streamconn/internal/config"
	"github.com/lumenmarkets/streamconn/internal/logging"
)

// Module provides the demo's CLI command.
var Module = fx.Module("cli",
	fx.Provide(NewConnectCmd),
	fx.Invoke(RunCLI),
)

// NewConnectCmd creates the "connect" command.
func NewConnectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Open a resilient websocket connection and print lifecycle events",
	}
	cmd.Flags().String("url", "", "websocket URL to connect to (overrides STREAMCONN_CONNECTION_URL)")
	cmd.Flags().StringSlice("symbol", nil, "symbol(s) to subscribe to, e.g. BTC-USD")
	return cmd
}

// RunCLI executes the cobra CLI with fx-provided dependencies.
func RunCLI(connectCmd *cobra.Command, logger logging.ApplicationLogger) {
	rootCmd := &cobra.Command{
		Use:   "streamconn-demo",
		Short: "streamconn demo CLI",
	}
	rootCmd.AddCommand(connectCmd)

	connectCmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if url, _ := cmd.Flags().GetString("url"); url != "" {
			cfg.Connection.URL = url
		}
		if cfg.Connection.URL == "" {
			return fmt.Errorf("connection url is required: set --url or STREAMCONN_CONNECTION_URL")
		}
		symbols, _ := cmd.Flags().GetStringSlice("symbol")

		return RunDemo(cmd.Context(), cfg, symbols, logger)
	}

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
