// Package config implements TOML configuration loading for the sagitta
// binary, grounded on the teacher's internal/config package: a layered
// config struct parsed with github.com/BurntSushi/toml.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration structure for a Sagitta process
// (remote server, FUSE mount, or CLI command reading the same file).
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	BlobStore BlobStoreConfig `toml:"blob_store"`
	Overlay   OverlayConfig   `toml:"overlay"`
	Remote    RemoteConfig    `toml:"remote"`
	Mount     MountConfig     `toml:"mount"`
	Logging   LoggingConfig   `toml:"logging"`
	Network   NetworkConfig   `toml:"network"`
}

// DatabaseConfig locates the revision database file.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// BlobStoreConfig locates the blob store root directory.
type BlobStoreConfig struct {
	Root string `toml:"root"`
}

// OverlayConfig locates the local overlay base directory.
type OverlayConfig struct {
	Base string `toml:"base"`
}

// RemoteConfig is the address the remote server listens on, or that FUSE
// and CLI clients connect to.
type RemoteConfig struct {
	Address string `toml:"address"`
}

// MountConfig holds default FUSE mount options.
type MountConfig struct {
	Path        string `toml:"path"`
	AllowOther  bool   `toml:"allow_other"`
	SyncAddress string `toml:"sync_address"`
}

// LoggingConfig controls log level and format, mirroring the teacher's
// LoggingConfig shape.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// NetworkConfig controls the HTTP client timeout used by internal/remoteclient.
type NetworkConfig struct {
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// Default returns a Config populated with sensible defaults, matching the
// teacher's internal/config/defaults.go convention of a single Default()
// constructor.
func Default() Config {
	return Config{
		Database:  DatabaseConfig{Path: "sagitta.db"},
		BlobStore: BlobStoreConfig{Root: "blobs"},
		Overlay:   OverlayConfig{Base: "overlay"},
		Remote:    RemoteConfig{Address: "127.0.0.1:7420"},
		Mount:     MountConfig{Path: "/mnt/sagitta", SyncAddress: "127.0.0.1:7421"},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Network:   NetworkConfig{TimeoutSeconds: 30},
	}
}

// Load reads and parses the TOML config file at path, filling unset fields
// from Default().
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}
