package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// fileConfig is the on-disk shape. Durations are written as strings such
// as "2s"; the auth token is never written.
type fileConfig struct {
	DataDir    string        `toml:"data_dir"`
	DBPath     string        `toml:"db_path,omitempty"`
	Locale     string        `toml:"locale"`
	LegacyFile string        `toml:"legacy_file,omitempty"`
	Remote     fileRemote    `toml:"remote"`
	Daemon     fileDaemon    `toml:"daemon"`
	Dashboard  fileDashboard `toml:"dashboard"`
	Log        fileLog       `toml:"log"`
}

type fileRemote struct {
	Mode             string `toml:"mode,omitempty"`
	URL              string `toml:"url,omitempty"`
	ProductBatchSize int    `toml:"product_batch_size"`
	BatchSize        int    `toml:"batch_size"`
	BatchPause       string `toml:"batch_pause"`
	PollInterval     string `toml:"poll_interval"`
}

type fileDaemon struct {
	InboxDir string `toml:"inbox_dir,omitempty"`
	Debounce string `toml:"debounce"`
}

type fileDashboard struct {
	Port int `toml:"port"`
}

type fileLog struct {
	File  string `toml:"file,omitempty"`
	Quiet bool   `toml:"quiet"`
}

// Encode renders c as TOML.
func (c *Config) Encode() ([]byte, error) {
	fc := fileConfig{
		DataDir:    c.DataDir,
		DBPath:     c.DBPath,
		Locale:     c.Locale,
		LegacyFile: c.LegacyFile,
		Remote: fileRemote{
			Mode:             c.Remote.Mode,
			URL:              c.Remote.URL,
			ProductBatchSize: c.Remote.ProductBatchSize,
			BatchSize:        c.Remote.BatchSize,
			BatchPause:       c.Remote.BatchPause.String(),
			PollInterval:     c.Remote.PollInterval.String(),
		},
		Daemon:    fileDaemon{InboxDir: c.Daemon.InboxDir, Debounce: c.Daemon.DebounceDelay.String()},
		Dashboard: fileDashboard{Port: c.Dashboard.Port},
		Log:       fileLog{File: c.Log.File, Quiet: c.Log.Quiet},
	}

	var buf bytes.Buffer
	buf.WriteString("# storefront configuration\n# The remote token is read from STOREFRONT_REMOTE_TOKEN only.\n\n")
	if err := toml.NewEncoder(&buf).Encode(fc); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// Write saves c to path atomically. An existing file is only replaced when
// overwrite is set.
func (c *Config) Write(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}
	data, err := c.Encode()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
