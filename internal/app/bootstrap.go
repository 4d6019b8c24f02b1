package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"edaconn/internal/config"
	"edaconn/pkg/logging"
)

// shutdownTimeout bounds the graceful drain of client connections.
const shutdownTimeout = 5 * time.Second

// Application bootstraps and runs the edaconn daemon. Initialization is
// two-phase: NewApplication loads configuration and wires services, Run
// restores the persisted session and serves until the context ends.
type Application struct {
	config   *Config
	services *Services
}

// NewApplication creates and initializes an application instance.
func NewApplication(cfg *Config) (*Application, error) {
	appLogLevel := logging.LevelInfo
	if cfg.Debug {
		appLogLevel = logging.LevelDebug
	}
	var logOutput io.Writer = os.Stdout
	if cfg.Silent {
		logOutput = io.Discard
	}

	configPath := cfg.ConfigPath
	if configPath == "" {
		configPath = config.GetDefaultConfigPathOrPanic()
	}

	edaCfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
	}

	// The config file can lower the level further; --debug always wins.
	if !cfg.Debug {
		appLogLevel = logging.ParseLevel(edaCfg.Log.Level)
	}
	logging.Init(appLogLevel, logOutput)

	services, err := InitializeServices(edaCfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

// Run migrates legacy storage, restores any persisted session and serves
// the WebSocket endpoint. Blocks until ctx is cancelled or the listener
// fails, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	defer a.services.Close()

	if err := a.services.Store.Migrate(); err != nil {
		logging.Error("Bootstrap", err, "Storage migration failed")
		return fmt.Errorf("storage migration failed: %w", err)
	}

	if err := a.services.Sessions.Restore(ctx); err != nil {
		// A broken persisted session should not keep the daemon down.
		logging.Warn("Bootstrap", "Session restore failed, starting disconnected: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.services.Server.Start()
	}()

	select {
	case <-ctx.Done():
		logging.Info("Bootstrap", "Shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}

	// The session is left intact on shutdown: persisted credentials are
	// what Restore picks up on the next start.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return a.services.Server.Shutdown(shutdownCtx)
}
