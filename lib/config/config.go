// Package config loads and reloads the server's TOML configuration
// file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/Sirupsen/logrus"
)

// Config is the top-level, top-level-table TOML configuration.
type Config struct {
	Log         string           `toml:"log"`
	Listeners   []ListenerConfig `toml:"listener"`
	Store       StoreConfig      `toml:"store"`
	Cache       CacheConfig      `toml:"cache"`
	MaxSessions int              `toml:"max_sessions"`

	// absolute filepath this config was loaded from, used by Reload.
	fpath string
}

// ListenerConfig describes one bound port.
type ListenerConfig struct {
	Name       string `toml:"name"`
	Bind       string `toml:"bind"`
	Transport  string `toml:"transport"` // "cleartext", "implicit-tls", "explicit-tls"
	ServerName string `toml:"server_name"`
	TLSCert    string `toml:"tls_cert"`
	TLSKey     string `toml:"tls_key"`
}

// StoreConfig configures the Postgres backend.
type StoreConfig struct {
	DSN     string `toml:"dsn"`
	BlobDir string `toml:"blob_dir"`
}

// CacheConfig configures the article cache budget and expiry.
type CacheConfig struct {
	MaxBytes    int64         `toml:"max_bytes"`
	TTL         time.Duration `toml:"ttl"`
	SweepPeriod time.Duration `toml:"sweep_period"`
}

// DefaultConfig is a complete, immediately-usable configuration
// written out on first run.
var DefaultConfig = Config{
	Log:         "info",
	MaxSessions: 1000,
	Listeners: []ListenerConfig{
		{Name: "reader", Bind: "0.0.0.0:119", Transport: "cleartext", ServerName: "news.example.com"},
	},
	Store: StoreConfig{
		DSN:     "user=nntpd password=nntpd host=127.0.0.1 port=5432 dbname=nntpd sslmode=disable",
		BlobDir: "./blobs",
	},
	Cache: CacheConfig{
		MaxBytes:    256 * 1024 * 1024,
		TTL:         15 * time.Minute,
		SweepPeriod: 5 * time.Minute,
	},
}

func logger() *log.Entry {
	return log.WithFields(log.Fields{"pkg": "config"})
}

// Reload re-reads the file this Config was loaded from, in place.
func (c *Config) Reload() error {
	if c.fpath == "" {
		return fmt.Errorf("config: cannot reload, no source file recorded")
	}
	next := new(Config)
	if _, err := toml.DecodeFile(c.fpath, next); err != nil {
		return fmt.Errorf("config: reload: %w", err)
	}
	next.fpath = c.fpath
	*c = *next
	logger().Info("configuration reloaded")
	return nil
}

// Ensure loads the config at fname, creating it from DefaultConfig if
// it does not yet exist.
func Ensure(fname string) (*Config, error) {
	if _, err := os.Stat(fname); os.IsNotExist(err) {
		logger().WithFields(log.Fields{"path": fname}).Info("writing default configuration")
		f, err := os.OpenFile(fname, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return nil, fmt.Errorf("config: create default: %w", err)
		}
		enc := toml.NewEncoder(f)
		encErr := enc.Encode(&DefaultConfig)
		closeErr := f.Close()
		if encErr != nil {
			return nil, fmt.Errorf("config: encode default: %w", encErr)
		}
		if closeErr != nil {
			return nil, fmt.Errorf("config: write default: %w", closeErr)
		}
	}
	return Load(fname)
}

// Load reads the config at fname without creating a default.
func Load(fname string) (*Config, error) {
	cfg := new(Config)
	if _, err := toml.DecodeFile(fname, cfg); err != nil {
		return nil, fmt.Errorf("config: load: %w", err)
	}
	cfg.fpath = fname
	return cfg, nil
}
