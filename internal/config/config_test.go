package config

import (
	"os"
	"path/filepath"
	"testing"
)

func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestLoad(t *testing.T) {
	content := `
server:
  port: 9000
tools:
  manifest_path: "/etc/viewer/tools.yaml"
  backend_url: "http://tools.internal:5000"
stream:
  url: "ws://tools.internal:5000/socket"
  retry_interval_sec: 3
cache:
  tile_size_mb: 256
`
	cfg := loadFromString(t, content)

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Tools.ManifestPath != "/etc/viewer/tools.yaml" {
		t.Errorf("unexpected manifest_path: %s", cfg.Tools.ManifestPath)
	}
	if cfg.Stream.RetryIntervalSec != 3 {
		t.Errorf("unexpected retry interval: %d", cfg.Stream.RetryIntervalSec)
	}
	if cfg.Cache.TileSizeMB != 256 {
		t.Errorf("unexpected tile_size_mb: %d", cfg.Cache.TileSizeMB)
	}

	// Unset values fall back to defaults.
	if cfg.Render.TileSize != 256 {
		t.Errorf("expected default tile size, got %d", cfg.Render.TileSize)
	}
	if cfg.Store.RetentionDays != 7 {
		t.Errorf("expected default retention, got %d", cfg.Store.RetentionDays)
	}
	if cfg.Tools.RequestTimeoutSec != 120 {
		t.Errorf("expected default request timeout, got %d", cfg.Tools.RequestTimeoutSec)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port, got %d", cfg.Server.Port)
	}
}

func TestLoadMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	if err := os.WriteFile(path, []byte("server: ["), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}
