// Package config loads the on-disk TOML configuration for one publish
// job: backend selection and credentials, the permission map, and engine
// tunables.
//
// Grounded on tonimelisma-onedrive-go's internal/config package, which
// loads its on-disk config the same way with github.com/BurntSushi/toml.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// BackendKind selects which remote transport a Config targets, matching
// init_manager's back_end_type switch in
// original_source/publisher/worker/managers/__init__.py ("ftp", "ftps",
// "sftp"; "internal" / live-hosting is out of scope, see SPEC_FULL.md §1).
type BackendKind string

const (
	BackendFTP  BackendKind = "ftp"
	BackendFTPS BackendKind = "ftps"
	BackendSFTP BackendKind = "sftp"
)

// Permissions is the on-disk shape of the three chmod strings applied
// per permission class, matching init_manager's
// `permission_map = {'r': ..., 'w': ..., 'c': ...}`.
type Permissions struct {
	Default   string `toml:"default"`
	Writeable string `toml:"writeable"`
	Cache     string `toml:"cache"`
}

// SFTPAuth configures SFTP authentication; at most one of Pass, KeyFile,
// UseAgent is expected to be set.
type SFTPAuth struct {
	Pass          string `toml:"pass"`
	KeyFile       string `toml:"key_file"`
	KeyPassphrase string `toml:"key_passphrase"`
	UseAgent      bool   `toml:"use_agent"`
}

// Config is the full on-disk job configuration.
type Config struct {
	Backend BackendKind `toml:"backend"`

	Host string `toml:"host"`
	Port int    `toml:"port"`
	User string `toml:"user"`
	Pass string `toml:"pass"`

	SFTP SFTPAuth `toml:"sftp"`

	Permissions Permissions `toml:"permissions"`

	// Writeable and Cache are root-relative path prefixes classified as
	// "w" and "c" respectively; everything else defaults to "r".
	Writeable []string `toml:"writeable"`
	Cache     []string `toml:"cache"`

	LocalRoot         string `toml:"local_root"`
	UploadConcurrency int    `toml:"upload_concurrency"`

	// ArchiveURL, when set, tells publisherd to run the collector (C10)
	// before publishing, downloading and extracting a site export into
	// LocalRoot first.
	ArchiveURL string `toml:"archive_url"`
}

// Load parses the TOML document at path into a Config.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the minimal fields every backend kind requires.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("config: host is required")
	}
	if c.LocalRoot == "" {
		return fmt.Errorf("config: local_root is required")
	}
	switch c.Backend {
	case BackendFTP, BackendFTPS, BackendSFTP:
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	return nil
}
