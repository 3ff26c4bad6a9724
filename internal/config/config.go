package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ICSConfig describes a single ICS subscription source for schools that
// publish variations as a calendar feed.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label shown in API responses.
	Name string `yaml:"name" json:"name"`
}

// BackendConfig points at the remote variation backend.
type BackendConfig struct {
	// URL is the backend API root, e.g. "https://variazioni.example.it/api".
	URL string `yaml:"url" json:"url"`
}

// BasicAuthConfig holds HTTP Basic Auth settings for the API. PasswordHash
// is an argon2id hash as produced by the hash-password subcommand; plain
// passwords are never stored in the config file.
type BasicAuthConfig struct {
	Username     string `yaml:"username" json:"username"`
	PasswordHash string `yaml:"password_hash" json:"password_hash"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used as the canonical display zone
	// (e.g. "Europe/Rome").
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of "debug", "info", "error".
	LogLevel string `yaml:"log_level" json:"log_level"`

	// DataDir is where the preference database, fetch caches and the
	// rendered preview live.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// Backend is the remote JSON variation source. Optional when at least
	// one ICS source is configured.
	Backend BackendConfig `yaml:"backend" json:"backend"`

	// ICS is the list of subscribed ICS variation feeds.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// RefreshCron schedules the fetch+render refresh cycle.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// DigestCron schedules daily digest delivery to subscribers.
	DigestCron string `yaml:"digest" json:"digest"`

	// DigestSendEmpty controls whether a "no variations" digest is sent
	// when a subscriber's day is empty. Default is to skip.
	DigestSendEmpty bool `yaml:"digest_send_empty" json:"digest_send_empty"`

	// DefaultSection is the class code used when a query names none.
	DefaultSection string `yaml:"default_section" json:"default_section"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "Europe/Rome",
		LogLevel:    "info",
		DataDir:     "/var/lib/variazioni",
		ICS:         []ICSConfig{},
		RefreshCron: "*/15 6-20 * * *",
		DigestCron:  "0 7 * * 1-6",
		BasicAuth:   nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs from older versions still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "Europe/Rome"
	}
	switch c.LogLevel {
	case "debug", "info", "error":
	default:
		c.LogLevel = "info"
	}
	if c.DataDir == "" {
		c.DataDir = "/var/lib/variazioni"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/15 6-20 * * *"
	}
	if c.DigestCron == "" {
		c.DigestCron = "0 7 * * 1-6"
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist: create the parent directory if needed,
//     write a default config with 0600 perms, and return the defaults.
//   - If the file exists: read YAML, unmarshal, normalize defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with the error so the
				// caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the configuration to the given path atomically (temp file +
// rename) with 0600 permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".variazioni-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
