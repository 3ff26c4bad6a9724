package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen != "127.0.0.1:8080" {
		t.Errorf("default listen = %q", cfg.Listen)
	}
	if cfg.Timezone != "Europe/Rome" {
		t.Errorf("default timezone = %q", cfg.Timezone)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file was not created: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config perms = %v, want 0600", info.Mode().Perm())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Backend.URL = "https://variazioni.example.it/api"
	cfg.DefaultSection = "5AIIN"
	cfg.ICS = []ICSConfig{{URL: "https://school.example.it/variazioni.ics", ID: "school"}}
	cfg.BasicAuth = &BasicAuthConfig{Username: "admin", PasswordHash: "$argon2id$..."}

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Backend.URL != cfg.Backend.URL {
		t.Errorf("backend url = %q", loaded.Backend.URL)
	}
	if loaded.DefaultSection != "5AIIN" {
		t.Errorf("default section = %q", loaded.DefaultSection)
	}
	if len(loaded.ICS) != 1 || loaded.ICS[0].ID != "school" {
		t.Errorf("ics sources = %+v", loaded.ICS)
	}
	if loaded.BasicAuth == nil || loaded.BasicAuth.Username != "admin" {
		t.Errorf("basic auth = %+v", loaded.BasicAuth)
	}
}

func TestNormalizeFillsDefaults(t *testing.T) {
	var cfg Config
	cfg.LogLevel = "verbose"
	cfg.Normalize()

	if cfg.RefreshCron == "" || cfg.DigestCron == "" {
		t.Error("cron defaults must be filled")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("unknown log level should fall back to info, got %q", cfg.LogLevel)
	}
	if cfg.ICS == nil {
		t.Error("ICS list should be non-nil after Normalize")
	}
}
