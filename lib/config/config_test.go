package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	fname := filepath.Join(dir, "nntpd.toml")

	cfg, err := Ensure(fname)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if _, err := os.Stat(fname); err != nil {
		t.Fatalf("expected config file to be created: %v", err)
	}
	if len(cfg.Listeners) != 1 || cfg.Listeners[0].Bind != "0.0.0.0:119" {
		t.Fatalf("unexpected default listeners: %+v", cfg.Listeners)
	}
	if cfg.MaxSessions != 1000 {
		t.Fatalf("expected default MaxSessions 1000, got %d", cfg.MaxSessions)
	}
}

func TestEnsureDoesNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	fname := filepath.Join(dir, "nntpd.toml")

	if _, err := Ensure(fname); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if _, err := Ensure(fname); err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	reloaded, err := Load(fname)
	if err != nil {
		t.Fatalf("Load after second Ensure: %v", err)
	}
	if reloaded.MaxSessions != 1000 {
		t.Fatalf("Ensure should not have overwritten an existing file; got MaxSessions=%d", reloaded.MaxSessions)
	}
}

func TestReload(t *testing.T) {
	dir := t.TempDir()
	fname := filepath.Join(dir, "nntpd.toml")
	cfg, err := Ensure(fname)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	f, err := os.OpenFile(fname, os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	f.WriteString("max_sessions = 7\n")
	f.Close()

	if err := cfg.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if cfg.MaxSessions != 7 {
		t.Fatalf("expected reloaded MaxSessions 7, got %d", cfg.MaxSessions)
	}
}
