package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the instrument database daemon.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Channels ChannelsConfig `yaml:"channels"`
	History  HistoryConfig  `yaml:"history"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	// Path is the filesystem path to the instrument database file.
	Path string `yaml:"path"`

	// Create makes the daemon initialise a fresh database at Path if one
	// does not already exist there.
	Create bool `yaml:"create"`

	// WALMode enables Write-Ahead Logging for better concurrent access.
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	BusyTimeout int `yaml:"busy_timeout"`
}

// ChannelsConfig contains settings for the live channel-access transport.
type ChannelsConfig struct {
	// DefaultField is appended to channel names that carry no field suffix.
	DefaultField string `yaml:"default_field"`

	// ConnectWait is the bounded per-channel connection wait during a
	// restore, in milliseconds.
	ConnectWait int `yaml:"connect_wait"`

	MQTT MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig contains MQTT broker connection settings for the bundled
// channel-access gateway transport.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
}

// HistoryConfig contains InfluxDB audit-trail settings.
type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: INSTRUMENTDB_SECTION_KEY
// For example: INSTRUMENTDB_DATABASE_PATH, INSTRUMENTDB_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := Default()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/instruments.db",
			Create:      true,
			WALMode:     true,
			BusyTimeout: 5,
		},
		Channels: ChannelsConfig{
			DefaultField: "VAL",
			ConnectWait:  1000,
			MQTT: MQTTConfig{
				Host:        "localhost",
				Port:        1883,
				TopicPrefix: "instrumentdb/ca",
				QoS:         1,
			},
		},
		History: HistoryConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: INSTRUMENTDB_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("INSTRUMENTDB_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT transport
	if v := os.Getenv("INSTRUMENTDB_MQTT_HOST"); v != "" {
		cfg.Channels.MQTT.Host = v
	}
	if v := os.Getenv("INSTRUMENTDB_MQTT_USERNAME"); v != "" {
		cfg.Channels.MQTT.Username = v
	}
	if v := os.Getenv("INSTRUMENTDB_MQTT_PASSWORD"); v != "" {
		cfg.Channels.MQTT.Password = v
	}

	// History
	if v := os.Getenv("INSTRUMENTDB_HISTORY_TOKEN"); v != "" {
		cfg.History.Token = v
	}
}

// Validate checks the configuration for missing or inconsistent values.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.Channels.DefaultField == "" {
		errs = append(errs, "channels.default_field is required")
	}
	if c.Channels.ConnectWait <= 0 {
		errs = append(errs, "channels.connect_wait must be positive")
	}

	if c.Channels.MQTT.Enabled {
		if c.Channels.MQTT.Host == "" {
			errs = append(errs, "channels.mqtt.host is required when MQTT is enabled")
		}
		if c.Channels.MQTT.QoS < 0 || c.Channels.MQTT.QoS > 2 {
			errs = append(errs, "channels.mqtt.qos must be 0, 1, or 2")
		}
		if c.Channels.MQTT.TopicPrefix == "" {
			errs = append(errs, "channels.mqtt.topic_prefix is required when MQTT is enabled")
		}
	}

	if c.History.Enabled {
		if c.History.URL == "" {
			errs = append(errs, "history.url is required when history is enabled")
		}
		if c.History.Bucket == "" {
			errs = append(errs, "history.bucket is required when history is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ConnectWaitDuration returns the per-channel connection wait as a Duration.
func (c *ChannelsConfig) ConnectWaitDuration() time.Duration {
	return time.Duration(c.ConnectWait) * time.Millisecond
}
