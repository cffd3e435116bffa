// Package config handles configuration loading for the viewer engine server.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Tools  ToolsConfig  `yaml:"tools"`
	Stream StreamConfig `yaml:"stream"`
	Cache  CacheConfig  `yaml:"cache"`
	Render RenderConfig `yaml:"render"`
	Store  StoreConfig  `yaml:"store"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// ToolsConfig contains tool backend settings.
type ToolsConfig struct {
	ManifestPath      string `yaml:"manifest_path"`
	BackendURL        string `yaml:"backend_url"`
	RequestTimeoutSec int    `yaml:"request_timeout_sec"`
}

// StreamConfig contains streaming job channel settings.
type StreamConfig struct {
	URL              string `yaml:"url"`
	RetryIntervalSec int    `yaml:"retry_interval_sec"`
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	TileSizeMB        int `yaml:"tile_size_mb"`
	TileTTLMinutes    int `yaml:"tile_ttl_minutes"`
	SnapshotCacheSize int `yaml:"snapshot_cache_size"`
}

// RenderConfig contains rendering settings.
type RenderConfig struct {
	TileSize int `yaml:"tile_size"`
}

// StoreConfig contains submission persistence settings.
type StoreConfig struct {
	SQLitePath    string `yaml:"sqlite_path"`
	RetentionDays int    `yaml:"retention_days"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		return DefaultConfig(), nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)

	return &cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Tools: ToolsConfig{
			ManifestPath:      "./config/tools.yaml",
			BackendURL:        "http://localhost:5000/api/tools",
			RequestTimeoutSec: 120,
		},
		Stream: StreamConfig{
			URL:              "ws://localhost:5000/socket",
			RetryIntervalSec: 5,
		},
		Cache: CacheConfig{
			TileSizeMB:        512,
			TileTTLMinutes:    10,
			SnapshotCacheSize: 1000,
		},
		Render: RenderConfig{
			TileSize: 256,
		},
		Store: StoreConfig{
			SQLitePath:    "./data/submissions.sqlite",
			RetentionDays: 7,
			MaxConcurrent: 2,
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if cfg.Tools.ManifestPath == "" {
		cfg.Tools.ManifestPath = defaults.Tools.ManifestPath
	}
	if cfg.Tools.BackendURL == "" {
		cfg.Tools.BackendURL = defaults.Tools.BackendURL
	}
	if cfg.Tools.RequestTimeoutSec == 0 {
		cfg.Tools.RequestTimeoutSec = defaults.Tools.RequestTimeoutSec
	}
	if cfg.Stream.URL == "" {
		cfg.Stream.URL = defaults.Stream.URL
	}
	if cfg.Stream.RetryIntervalSec == 0 {
		cfg.Stream.RetryIntervalSec = defaults.Stream.RetryIntervalSec
	}
	if cfg.Cache.TileSizeMB == 0 {
		cfg.Cache.TileSizeMB = defaults.Cache.TileSizeMB
	}
	if cfg.Cache.TileTTLMinutes == 0 {
		cfg.Cache.TileTTLMinutes = defaults.Cache.TileTTLMinutes
	}
	if cfg.Cache.SnapshotCacheSize == 0 {
		cfg.Cache.SnapshotCacheSize = defaults.Cache.SnapshotCacheSize
	}
	if cfg.Render.TileSize == 0 {
		cfg.Render.TileSize = defaults.Render.TileSize
	}
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = defaults.Store.SQLitePath
	}
	if cfg.Store.RetentionDays == 0 {
		cfg.Store.RetentionDays = defaults.Store.RetentionDays
	}
	if cfg.Store.MaxConcurrent == 0 {
		cfg.Store.MaxConcurrent = defaults.Store.MaxConcurrent
	}
}
