// Package config loads the mailroom configuration from a TOML file.
package config

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/busybox42/mailroom/internal/cache"
	"github.com/busybox42/mailroom/internal/delivery"
	"github.com/busybox42/mailroom/internal/dispatch"
	"github.com/busybox42/mailroom/internal/mailer"
	"github.com/busybox42/mailroom/internal/pause"
	"github.com/busybox42/mailroom/internal/transport"
)

// Config represents the application configuration.
type Config struct {
	Database struct {
		Driver string `toml:"driver"` // "sqlite3", "mysql" or "postgres"
		DSN    string `toml:"dsn"`
	} `toml:"database"`

	Storage struct {
		Backend string `toml:"backend"` // "database" or "file"
		Dir     string `toml:"dir"`     // file backend directory
	} `toml:"storage"`

	Blacklist struct {
		Cache      cache.Config `toml:"cache"`
		TTLSeconds int          `toml:"ttl_seconds"`
	} `toml:"blacklist"`

	Pause     pause.Config         `toml:"pause"`
	Dispatch  dispatch.Config      `toml:"dispatch"`
	Transport transport.Config     `toml:"transport"`
	Retry     delivery.RetryConfig `toml:"retry"`
	Mailer    mailer.Config        `toml:"mailer"`

	Retention struct {
		Days int `toml:"days"`
	} `toml:"retention"`

	API struct {
		Enabled bool   `toml:"enabled"`
		Listen  string `toml:"listen"`
	} `toml:"api"`

	Logging struct {
		Level  string `toml:"level"`  // "debug", "info", "warn", "error"
		Format string `toml:"format"` // "text" or "json"
	} `toml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Database.Driver = "sqlite3"
	cfg.Database.DSN = "mailroom.db"

	cfg.Storage.Backend = "database"

	cfg.Blacklist.Cache.Type = "memory"
	cfg.Blacklist.TTLSeconds = 300

	cfg.Pause.Source = "config"

	cfg.Dispatch.Type = "local"
	cfg.Dispatch.Workers = 5
	cfg.Dispatch.QueueSize = 100

	cfg.Transport.Host = "localhost"
	cfg.Transport.Port = 25
	cfg.Transport.Timeout = 30

	cfg.Retry = delivery.DefaultRetryConfig()

	cfg.Retention.Days = 90

	cfg.API.Enabled = true
	cfg.API.Listen = ":8025"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	return cfg
}

// FindConfigFile looks for a configuration file in common locations.
func FindConfigFile(configPath string) (string, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
		return "", fmt.Errorf("config file not found at specified path: %s", configPath)
	}

	locations := []string{
		"./mailroom.conf",
		"./config/mailroom.conf",
		os.ExpandEnv("$HOME/.mailroom.conf"),
		"/etc/mailroom/mailroom.conf",
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc, nil
		}
	}
	return "", fmt.Errorf("no config file found")
}

// LoadConfig loads a configuration file, falling back to defaults when no
// file exists.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	configFile, err := FindConfigFile(configPath)
	if err != nil {
		if configPath != "" {
			return nil, err
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing TOML configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints the TOML decoder cannot.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn must be set")
	}
	if c.Storage.Backend == "file" && c.Storage.Dir == "" {
		return fmt.Errorf("file storage backend requires storage.dir")
	}
	if c.Dispatch.Type == "kafka" && len(c.Dispatch.Brokers) == 0 {
		return fmt.Errorf("kafka dispatch requires dispatch.brokers")
	}
	if c.Retention.Days <= 0 {
		return fmt.Errorf("retention.days must be positive")
	}
	if c.Mailer.TestMode && c.Mailer.TestEmail == "" {
		return fmt.Errorf("mailer.test_mode requires mailer.test_email")
	}
	return nil
}
