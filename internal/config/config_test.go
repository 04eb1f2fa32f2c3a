package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/marquee/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	assert.Equal(t, 3*time.Second, cfg.Sync.Debounce)
	assert.Equal(t, 10*time.Second, cfg.Sync.RetryInterval)
	assert.Zero(t, cfg.Sync.MaxRetries)
	assert.Equal(t, "/api/devices/login/", cfg.Backend.LoginPath)
	assert.Error(t, cfg.Validate(), "backend url is required")
}

func TestLoad(t *testing.T) {
	t.Run("reads yaml file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
backend:
  url: http://signage.local:3000
sync:
  debounce: 1s
  retry_interval: 15s
  max_retries: 4
cache:
  dir: /var/lib/marquee
`), 0644))

		cfg, err := config.Load(path)
		require.NoError(t, err)
		require.NoError(t, cfg.Validate())

		assert.Equal(t, "http://signage.local:3000", cfg.Backend.URL)
		assert.Equal(t, time.Second, cfg.Sync.Debounce)
		assert.Equal(t, 15*time.Second, cfg.Sync.RetryInterval)
		assert.Equal(t, 4, cfg.Sync.MaxRetries)
		assert.Equal(t, "/var/lib/marquee", cfg.Cache.Dir)
		// untouched keys keep defaults
		assert.Equal(t, 60*time.Second, cfg.Sync.FetchTimeout)
		assert.Equal(t, "ws://signage.local:3000/socket", cfg.SocketURL())
	})

	t.Run("environment overrides", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("backend:\n  url: http://file\n"), 0644))
		t.Setenv("MARQUEE_BACKEND_URL", "https://env.example")
		t.Setenv("MARQUEE_SYNC_RETRY_INTERVAL", "20s")

		cfg, err := config.Load(path)
		require.NoError(t, err)

		assert.Equal(t, "https://env.example", cfg.Backend.URL)
		assert.Equal(t, 20*time.Second, cfg.Sync.RetryInterval)
		assert.Equal(t, "wss://env.example/socket", cfg.SocketURL())
	})

	t.Run("explicit socket url wins", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Backend.URL = "http://a"
		cfg.Backend.SocketURL = "ws://b/events"
		assert.Equal(t, "ws://b/events", cfg.SocketURL())
	})

	t.Run("invalid file is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("backend: [unclosed"), 0644))

		_, err := config.Load(path)
		assert.Error(t, err)
	})
}
