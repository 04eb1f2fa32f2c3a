package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Backend BackendConfig `mapstructure:"backend"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Server  ServerConfig  `mapstructure:"server"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// BackendConfig holds the signage backend endpoints
type BackendConfig struct {
	URL       string        `mapstructure:"url"`        // Backend root, media paths resolve against it
	SocketURL string        `mapstructure:"socket_url"` // WebSocket endpoint for change events
	LoginPath string        `mapstructure:"login_path"` // Password is appended to this path
	Timeout   time.Duration `mapstructure:"timeout"`    // Login request timeout
}

// SyncConfig tunes the refresh cycle
type SyncConfig struct {
	Debounce      time.Duration `mapstructure:"debounce"`       // Quiet period before an event-triggered cycle
	RetryInterval time.Duration `mapstructure:"retry_interval"` // Countdown after a failed cycle
	MaxRetries    int           `mapstructure:"max_retries"`    // 0 = retry forever
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`  // Per-item download bound
	FetchRate     float64       `mapstructure:"fetch_rate"`     // Downloads per second, 0 = unlimited
}

// ServerConfig holds the renderer API configuration
type ServerConfig struct {
	Addr       string  `mapstructure:"addr"`
	LoginRate  float64 `mapstructure:"login_rate"`  // Command requests per second per client
	LoginBurst int     `mapstructure:"login_burst"` // Burst size for command requests
}

// CacheConfig holds the local content cache location
type CacheConfig struct {
	Dir string `mapstructure:"dir"` // Empty = memory only
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			LoginPath: "/api/devices/login/",
			Timeout:   30 * time.Second,
		},
		Sync: SyncConfig{
			Debounce:      3 * time.Second,
			RetryInterval: 10 * time.Second,
			FetchTimeout:  60 * time.Second,
		},
		Server: ServerConfig{
			Addr:       "127.0.0.1:8080",
			LoginRate:  1,
			LoginBurst: 5,
		},
		Cache: CacheConfig{
			Dir: defaultCachePath(),
		},
		Logging: LoggingConfig{
			File:  defaultLogPath(),
			Level: "INFO",
		},
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "marquee", "marquee.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "marquee", "marquee.log")
	}
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "marquee")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "marquee")
	}
}

// defaultCachePath returns the default cache directory path for the current OS
func defaultCachePath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "marquee", "cache")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "marquee", "cache")
	}
}

// Load reads configuration from path (or the default search paths when empty)
// and applies MARQUEE_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultConfigPath())
		v.AddConfigPath(".")
	}

	// Environment variable overrides (MARQUEE_BACKEND_URL -> backend.url)
	v.SetEnvPrefix("MARQUEE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// bindEnv registers every key so AutomaticEnv applies during Unmarshal
// even when the key is absent from the file.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"backend.url", "backend.socket_url", "backend.login_path", "backend.timeout",
		"sync.debounce", "sync.retry_interval", "sync.max_retries", "sync.fetch_timeout", "sync.fetch_rate",
		"server.addr", "server.login_rate", "server.login_burst",
		"cache.dir",
		"logging.file", "logging.level",
	} {
		_ = v.BindEnv(key)
	}
}

// Validate checks the settings the daemon cannot run without
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}
	if c.Sync.Debounce < 0 || c.Sync.RetryInterval <= 0 {
		return fmt.Errorf("sync.debounce must be >= 0 and sync.retry_interval > 0")
	}
	if c.Sync.MaxRetries < 0 {
		return fmt.Errorf("sync.max_retries must be >= 0")
	}
	return nil
}

// SocketURL returns the configured WebSocket endpoint, deriving
// ws(s)://<backend>/socket when unset.
func (c *Config) SocketURL() string {
	if c.Backend.SocketURL != "" {
		return c.Backend.SocketURL
	}
	base := strings.TrimRight(c.Backend.URL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/socket"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/socket"
	default:
		return base + "/socket"
	}
}
