package app

// Config holds the command-line level settings for a daemon run.
// Everything else comes from the configuration file.
type Config struct {
	// Debug enables verbose logging across the application.
	Debug bool

	// Silent suppresses all log output. Useful for tests and scripting.
	Silent bool

	// ConfigPath overrides the default configuration directory.
	ConfigPath string
}

// NewConfig creates the application configuration.
func NewConfig(debug, silent bool, configPath string) *Config {
	return &Config{
		Debug:      debug,
		Silent:     silent,
		ConfigPath: configPath,
	}
}
