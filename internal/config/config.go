// Package config loads storefront settings from flags, STOREFRONT_*
// environment variables and an optional TOML file, in that order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/crumbworks/storefront/internal/catalog/remote"
)

// EnvPrefix is the prefix of every environment variable read.
const EnvPrefix = "STOREFRONT"

// Remote modes.
const (
	RemoteOff    = "off"
	RemoteTurso  = "turso"
	RemoteMemory = "memory"
)

// Config is the resolved configuration.
type Config struct {
	DataDir    string          `mapstructure:"data_dir"`
	DBPath     string          `mapstructure:"db_path"`
	Locale     string          `mapstructure:"locale"`
	LegacyFile string          `mapstructure:"legacy_file"`
	Remote     RemoteConfig    `mapstructure:"remote"`
	Daemon     DaemonConfig    `mapstructure:"daemon"`
	Dashboard  DashboardConfig `mapstructure:"dashboard"`
	Log        LogConfig       `mapstructure:"log"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// RemoteConfig configures the remote mirror.
type RemoteConfig struct {
	Mode             string        `mapstructure:"mode"`
	URL              string        `mapstructure:"url"`
	Token            string        `mapstructure:"token"`
	ProductBatchSize int           `mapstructure:"product_batch_size"`
	BatchSize        int           `mapstructure:"batch_size"`
	BatchPause       time.Duration `mapstructure:"batch_pause"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
}

// DaemonConfig configures the background daemon.
type DaemonConfig struct {
	InboxDir      string        `mapstructure:"inbox_dir"`
	DebounceDelay time.Duration `mapstructure:"debounce"`
}

// DashboardConfig configures the live dashboard.
type DashboardConfig struct {
	Port int `mapstructure:"port"`
}

// LogConfig configures log output.
type LogConfig struct {
	File  string `mapstructure:"file"`
	Quiet bool   `mapstructure:"quiet"`
}

// DefaultDataDir is used when no data dir is configured.
const DefaultDataDir = ".storefront"

// SetDefaults registers every key with its default so environment
// variables are picked up for all of them.
func SetDefaults(v *viper.Viper) {
	opts := remote.DefaultOptions()
	v.SetDefault("data_dir", DefaultDataDir)
	v.SetDefault("db_path", "")
	v.SetDefault("locale", "und")
	v.SetDefault("legacy_file", "")
	v.SetDefault("remote.mode", "")
	v.SetDefault("remote.url", "")
	v.SetDefault("remote.token", "")
	v.SetDefault("remote.product_batch_size", opts.ProductBatchSize)
	v.SetDefault("remote.batch_size", opts.BatchSize)
	v.SetDefault("remote.batch_pause", opts.BatchPause)
	v.SetDefault("remote.poll_interval", opts.PollInterval)
	v.SetDefault("daemon.inbox_dir", "")
	v.SetDefault("daemon.debounce", 500*time.Millisecond)
	v.SetDefault("dashboard.port", 8080)
	v.SetDefault("log.file", "")
	v.SetDefault("log.quiet", false)
}

// Load resolves the configuration. cfgFile may be empty, in which case
// <data dir>/config.toml is read when it exists.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigType("toml")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigFile(filepath.Join(v.GetString("data_dir"), "config.toml"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !(errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if _, err := os.Stat(cfg.File); err != nil {
		cfg.File = ""
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field combinations.
func (c *Config) Validate() error {
	switch c.Remote.Mode {
	case "", RemoteOff, RemoteTurso, RemoteMemory:
	default:
		return fmt.Errorf("invalid remote mode %q (want off, turso or memory)", c.Remote.Mode)
	}
	if c.RemoteMode() == RemoteTurso && c.Remote.URL == "" {
		return fmt.Errorf("remote token is set but remote url is empty (set %s_REMOTE_URL)", EnvPrefix)
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("invalid dashboard port %d", c.Dashboard.Port)
	}
	return nil
}

// RemoteMode returns the effective remote mode. Remote sync is on when a
// credential is configured, or when the in-process store is asked for.
func (c *Config) RemoteMode() string {
	switch {
	case c.Remote.Mode == RemoteOff:
		return RemoteOff
	case c.Remote.Mode == RemoteMemory:
		return RemoteMemory
	case c.Remote.Token != "":
		return RemoteTurso
	}
	return RemoteOff
}

// RemoteEnabled reports whether writes are mirrored remotely.
func (c *Config) RemoteEnabled() bool {
	return c.RemoteMode() != RemoteOff
}

// RemoteOptions converts the batching settings.
func (c *Config) RemoteOptions() remote.Options {
	return remote.Options{
		ProductBatchSize: c.Remote.ProductBatchSize,
		BatchSize:        c.Remote.BatchSize,
		BatchPause:       c.Remote.BatchPause,
		PollInterval:     c.Remote.PollInterval,
	}
}

// DatabasePath returns the local store path.
func (c *Config) DatabasePath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.DataDir, "storefront.db")
}

// InboxDir returns the directory the daemon watches for new images.
func (c *Config) InboxDir() string {
	if c.Daemon.InboxDir != "" {
		return c.Daemon.InboxDir
	}
	return filepath.Join(c.DataDir, "inbox")
}

// LoadDotEnv exports the KEY=value pairs in path into the environment so
// STOREFRONT_* settings, such as the remote token, can live in a .env file.
// Variables already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}
