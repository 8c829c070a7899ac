package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for mqtt-cli.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Defaults DefaultsConfig `yaml:"defaults"`
	Logging  LoggingConfig  `yaml:"logging"`
	Archive  ArchiveConfig  `yaml:"archive"`
}

// DefaultsConfig holds the values used when a command omits the matching flag.
type DefaultsConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	MQTTVersion    string `yaml:"mqtt_version"`
	ClientIDPrefix string `yaml:"client_id_prefix"`
	KeepAlive      int    `yaml:"keep_alive"`      // seconds
	ConnectTimeout int    `yaml:"connect_timeout"` // seconds
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ArchiveConfig contains settings for the SQLite message archive.
// The archive is disabled when Path is empty.
type ArchiveConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// Enabled reports whether received messages can be archived.
func (a ArchiveConfig) Enabled() bool {
	return a.Path != ""
}

// EnvConfigPath names the environment variable that points at the config file.
const EnvConfigPath = "MQTT_CLI_CONFIG"

// DefaultPath returns the config file location used when EnvConfigPath is unset.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".mqtt-cli", "config.yaml")
	}
	return filepath.Join(home, ".mqtt-cli", "config.yaml")
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// A missing file is not an error when optional is true; the defaults are used instead.
func Load(path string, optional bool) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case optional && errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadDefault loads the file named by EnvConfigPath, or the optional DefaultPath.
func LoadDefault() (*Config, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return Load(p, false)
	}
	return Load(DefaultPath(), true)
}

// Default returns the built-in configuration with environment overrides applied.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

func defaultConfig() *Config {
	return &Config{
		Defaults: DefaultsConfig{
			Host:           "localhost",
			Port:           1883,
			MQTTVersion:    "3",
			ClientIDPrefix: "mqttClient",
			KeepAlive:      60,
			ConnectTimeout: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Archive: ArchiveConfig{
			WALMode:     true,
			BusyTimeout: 5,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MQTT_CLI_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MQTT_CLI_HOST"); v != "" {
		cfg.Defaults.Host = v
	}
	if v := os.Getenv("MQTT_CLI_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Defaults.Port = port
		}
	}
	if v := os.Getenv("MQTT_CLI_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MQTT_CLI_ARCHIVE_PATH"); v != "" {
		cfg.Archive.Path = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Defaults.Host == "" {
		errs = append(errs, "defaults.host is required")
	}
	if c.Defaults.Port < 1 || c.Defaults.Port > 65535 {
		errs = append(errs, "defaults.port must be between 1 and 65535")
	}
	if c.Defaults.KeepAlive < 0 || c.Defaults.KeepAlive > 65535 {
		errs = append(errs, "defaults.keep_alive must be between 0 and 65535")
	}
	if c.Defaults.ConnectTimeout < 1 {
		errs = append(errs, "defaults.connect_timeout must be positive")
	}
	switch c.Defaults.MQTTVersion {
	case "3", "3.1", "3.1.1":
	default:
		errs = append(errs, "defaults.mqtt_version must be 3, 3.1 or 3.1.1")
	}
	if c.Archive.BusyTimeout < 0 {
		errs = append(errs, "archive.busy_timeout must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
