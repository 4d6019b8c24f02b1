package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := LoadConfig(t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, DefaultHost, cfg.Listen.Host)
		assert.Equal(t, DefaultPort, cfg.Listen.Port)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.NotEmpty(t, cfg.Storage.Dir)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		dir := t.TempDir()
		content := []byte("listen:\n  port: 9999\nlog:\n  level: debug\n")
		require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), content, 0644))

		cfg, err := LoadConfig(dir)
		require.NoError(t, err)
		assert.Equal(t, 9999, cfg.Listen.Port)
		assert.Equal(t, "debug", cfg.Log.Level)
		// Unset fields keep their defaults.
		assert.Equal(t, DefaultHost, cfg.Listen.Host)
	})

	t.Run("malformed yaml is an error", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte("listen: ["), 0644))

		_, err := LoadConfig(dir)
		assert.Error(t, err)
	})
}

func TestListenAddress(t *testing.T) {
	l := ListenConfig{Host: "localhost", Port: 8383}
	assert.Equal(t, "localhost:8383", l.Address())
}
