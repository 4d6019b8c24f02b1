package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultPort is the default WebSocket listen port.
	DefaultPort = 8383

	// DefaultHost is the default bind address.
	DefaultHost = "localhost"

	userConfigDir  = ".config/edaconn"
	stateDirName   = "state"
	configFileName = "config.yaml"
)

// GetDefaultConfig returns the default configuration for edaconn.
func GetDefaultConfig() Config {
	return Config{
		Listen: ListenConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Storage: StorageConfig{
			Dir: filepath.Join(GetDefaultConfigPathOrPanic(), stateDirName),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// GetDefaultConfigPathOrPanic returns the user configuration directory.
func GetDefaultConfigPathOrPanic() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}

	return filepath.Join(homeDir, userConfigDir)
}
