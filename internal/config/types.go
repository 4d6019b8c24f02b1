package config

import "fmt"

// Config is the top-level configuration structure for edaconn.
type Config struct {
	Listen  ListenConfig  `yaml:"listen"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// ListenConfig defines where the daemon exposes its WebSocket endpoint.
// The daemon serves local clients only; binding to anything other than
// a loopback address is the operator's own risk.
type ListenConfig struct {
	Host string `yaml:"host,omitempty"` // Host to bind to (default: localhost)
	Port int    `yaml:"port,omitempty"` // Port for the WebSocket endpoint (default: 8383)
}

// Address returns the host:port string for net/http.
func (l ListenConfig) Address() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

// StorageConfig defines where session state and target profiles are persisted.
type StorageConfig struct {
	Dir string `yaml:"dir,omitempty"` // Badger database directory (default: ~/.config/edaconn/state)
}

// LogConfig defines logging behavior.
type LogConfig struct {
	Level string `yaml:"level,omitempty"` // debug, info, warn, error (default: info)
}
