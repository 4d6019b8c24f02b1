package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"edaconn/internal/app"
)

// serveDebug enables verbose logging across the application.
var serveDebug bool

// serveSilent suppresses all log output.
var serveSilent bool

// serveConfigPath specifies a custom configuration directory path.
// When set, config.yaml is loaded from this directory instead of the
// default user configuration directory.
var serveConfigPath string

// serveCmd starts the daemon: the WebSocket endpoint browser clients
// connect to, plus the session manager behind it.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the edaconn daemon",
	Long: `Starts the edaconn daemon serving the local WebSocket endpoint.

The daemon restores any persisted session on start, keeps access tokens
refreshed ahead of expiry and proxies authenticated requests to the
connected EDA deployment. It runs until interrupted (Ctrl+C).

Configuration is read from config.yaml in the user configuration
directory (~/.config/edaconn); use --config-path to load it from a
different directory.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := app.NewConfig(serveDebug, serveSilent, serveConfigPath)

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().BoolVar(&serveSilent, "silent", false, "Suppress all log output")
	serveCmd.Flags().StringVar(&serveConfigPath, "config-path", "", "Custom configuration directory path")
}
