package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Environment overrides. The API key is usually provisioned through
// the environment rather than written into the config file.
const (
	envAPIKey = "BEACON_API_KEY"
	envDBPath = "BEACON_DB_PATH"
)

// Load reads the YAML config file, applies defaults, and applies
// environment overrides. An empty path skips the file and builds the
// configuration from defaults and environment alone.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// Apply defaults.
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8443"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "signals.db"
	}
	if cfg.Storage.PoolSize == 0 {
		cfg.Storage.PoolSize = 4
	}

	// Environment overrides.
	if key := os.Getenv(envAPIKey); key != "" {
		cfg.Auth.APIKey = key
	}
	if dbPath := os.Getenv(envDBPath); dbPath != "" {
		cfg.Storage.Path = dbPath
	}

	return &cfg, nil
}
