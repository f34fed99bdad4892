package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("STOREFRONT_DATA_DIR", dir)

	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.DataDir != dir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, dir)
	}
	if cfg.DatabasePath() != filepath.Join(dir, "storefront.db") {
		t.Errorf("DatabasePath() = %q", cfg.DatabasePath())
	}
	if cfg.RemoteEnabled() {
		t.Error("RemoteEnabled() = true without a token")
	}
	if cfg.Remote.ProductBatchSize != 10 || cfg.Remote.BatchSize != 400 {
		t.Errorf("batch sizes = %d/%d, want 10/400", cfg.Remote.ProductBatchSize, cfg.Remote.BatchSize)
	}
	if cfg.Remote.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v, want 2s", cfg.Remote.PollInterval)
	}
	if cfg.File != "" {
		t.Errorf("File = %q, want none", cfg.File)
	}
}

func TestLoad_TokenEnablesRemote(t *testing.T) {
	t.Setenv("STOREFRONT_DATA_DIR", t.TempDir())
	t.Setenv("STOREFRONT_REMOTE_TOKEN", "secret")
	t.Setenv("STOREFRONT_REMOTE_URL", "libsql://bakery.turso.io")

	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.RemoteMode() != RemoteTurso {
		t.Errorf("RemoteMode() = %q, want turso", cfg.RemoteMode())
	}
}

func TestLoad_TokenWithoutURL(t *testing.T) {
	t.Setenv("STOREFRONT_DATA_DIR", t.TempDir())
	t.Setenv("STOREFRONT_REMOTE_TOKEN", "secret")

	if _, err := Load(viper.New(), ""); err == nil {
		t.Error("Load() should reject a token without a url")
	}
}

func TestRemoteMode(t *testing.T) {
	tests := []struct {
		mode, token string
		want        string
	}{
		{"", "", RemoteOff},
		{"", "tok", RemoteTurso},
		{RemoteOff, "tok", RemoteOff},
		{RemoteMemory, "", RemoteMemory},
		{RemoteTurso, "", RemoteOff},
	}
	for _, tt := range tests {
		c := &Config{Remote: RemoteConfig{Mode: tt.mode, Token: tt.token}}
		if got := c.RemoteMode(); got != tt.want {
			t.Errorf("RemoteMode(mode=%q, token=%q) = %q, want %q", tt.mode, tt.token, got, tt.want)
		}
	}
}

func TestValidate_BadMode(t *testing.T) {
	c := &Config{Remote: RemoteConfig{Mode: "firebase"}}
	if err := c.Validate(); err == nil {
		t.Error("Validate() should reject unknown remote modes")
	}
}

func TestWriteThenLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("STOREFRONT_DATA_DIR", dir)

	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	cfg.Remote.Mode = RemoteMemory
	cfg.Remote.Token = "must-not-be-written"
	cfg.Remote.PollInterval = 5 * time.Second
	cfg.Dashboard.Port = 9090

	path := filepath.Join(dir, "config.toml")
	if err := cfg.Write(path, false); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if err := cfg.Write(path, false); err == nil {
		t.Error("Write() should refuse to overwrite without the flag")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	if strings.Contains(string(data), "must-not-be-written") {
		t.Errorf("token written to config file:\n%s", data)
	}

	loaded, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load() after Write failed: %v", err)
	}
	if loaded.File != path {
		t.Errorf("File = %q, want %q", loaded.File, path)
	}
	if loaded.Remote.Mode != RemoteMemory || loaded.Remote.PollInterval != 5*time.Second || loaded.Dashboard.Port != 9090 {
		t.Errorf("round trip lost settings: %+v", loaded)
	}
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	t.Setenv("STOREFRONT_DATA_DIR", t.TempDir())
	if _, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("Load() should fail when an explicit config file is missing")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "STOREFRONT_REMOTE_URL=libsql://shop.example\nSTOREFRONT_LOCALE=fr\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	t.Setenv("STOREFRONT_DATA_DIR", dir)
	t.Setenv("STOREFRONT_LOCALE", "de")
	// godotenv sets variables directly, so clear the new one afterwards.
	t.Cleanup(func() { _ = os.Unsetenv("STOREFRONT_REMOTE_URL") })

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() failed: %v", err)
	}
	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Remote.URL != "libsql://shop.example" {
		t.Errorf("Remote.URL = %q, want value from .env", cfg.Remote.URL)
	}
	if cfg.Locale != "de" {
		t.Errorf("Locale = %q, want the environment to win over .env", cfg.Locale)
	}
}

func TestLoadDotEnv_Missing(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Errorf("LoadDotEnv() on a missing file = %v, want nil", err)
	}
}
