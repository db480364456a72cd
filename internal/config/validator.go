package config

import (
	"fmt"
	"strings"
)

// MinAPIKeyLength is the minimum length of the shared-secret API key.
// A missing or short key is a fatal startup condition, never a
// per-request one.
const MinAPIKeyLength = 16

// Validate checks the configuration for fatal startup conditions:
//   - API key present and at least MinAPIKeyLength characters
//   - listener address and storage path non-empty
//   - TLS cert and key configured together or not at all
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Auth.APIKey == "" {
		errs = append(errs, "auth: api_key is required (set auth.api_key or BEACON_API_KEY)")
	} else if len(cfg.Auth.APIKey) < MinAPIKeyLength {
		errs = append(errs, fmt.Sprintf("auth: api_key must be at least %d characters", MinAPIKeyLength))
	}

	if cfg.Server.Addr == "" {
		errs = append(errs, "server: addr is required")
	}
	if cfg.Storage.Path == "" {
		errs = append(errs, "storage: path is required")
	}
	if cfg.Storage.PoolSize < 0 {
		errs = append(errs, "storage: pool_size must not be negative")
	}

	if (cfg.Server.TLSCert == "") != (cfg.Server.TLSKey == "") {
		errs = append(errs, "server: tls_cert and tls_key must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
