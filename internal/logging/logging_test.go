package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFactory_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "storefront.log")
	f, err := New(Config{File: path, Quiet: true})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	f.Logger("sync").Printf("remote put failed")
	f.Logger("daemon").Printf("watching inbox")
	if err := f.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "[sync] ") || !strings.Contains(out, "remote put failed") {
		t.Errorf("log file missing sync line:\n%s", out)
	}
	if !strings.Contains(out, "[daemon] ") || !strings.Contains(out, "watching inbox") {
		t.Errorf("log file missing daemon line:\n%s", out)
	}
}

func TestFactory_ReusesLoggers(t *testing.T) {
	f := Discard()
	if f.Logger("remote") != f.Logger("remote") {
		t.Error("Logger() should return the same logger per component")
	}
	if f.Logger("remote").Prefix() != "[remote] " {
		t.Errorf("Prefix() = %q", f.Logger("remote").Prefix())
	}
	if err := f.Close(); err != nil {
		t.Errorf("Close() without file failed: %v", err)
	}
}
