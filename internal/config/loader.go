package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// Load reads the config file, expands credential references, applies
// defaults and environment overrides. A missing file yields defaults only.
func Load(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// defaults + env only
	default:
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	}

	expandSensitiveFields(&cfg)
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	return cfg, nil
}

// expandSensitiveFields processes ${ENV_VAR} references in credential fields
// so keys never need to live in the config file itself.
func expandSensitiveFields(cfg *Config) {
	cfg.Google.ClientEmail = expandEnvVars(cfg.Google.ClientEmail)
	cfg.Google.PrivateKey = expandEnvVars(cfg.Google.PrivateKey)
	cfg.Store.Supabase.URL = expandEnvVars(cfg.Store.Supabase.URL)
	cfg.Store.Supabase.ServiceKey = expandEnvVars(cfg.Store.Supabase.ServiceKey)
}

// applyEnvOverrides reads well-known environment variables. The GCP_* and
// SUPABASE_* names match what deployments already export.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RELAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("RELAY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("GCP_PROJECT_ID"); v != "" {
		cfg.Google.ProjectID = v
	}
	if v := os.Getenv("GCP_CLIENT_EMAIL"); v != "" {
		cfg.Google.ClientEmail = v
	}
	if v := os.Getenv("GCP_PRIVATE_KEY"); v != "" {
		cfg.Google.PrivateKey = v
	}
	if v := os.Getenv("SUPABASE_URL"); v != "" {
		cfg.Store.Supabase.URL = v
	}
	if v := os.Getenv("SUPABASE_SERVICE_ROLE_KEY"); v != "" {
		cfg.Store.Supabase.ServiceKey = v
	}
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8787
	}
	if cfg.Server.Bind == "" {
		cfg.Server.Bind = "loopback"
	}
	if cfg.Google.Model == "" {
		cfg.Google.Model = DefaultModel
	}
	if cfg.Google.Location == "" {
		cfg.Google.Location = DefaultLocation
	}
	if cfg.Google.TokenURL == "" {
		cfg.Google.TokenURL = DefaultTokenURL
	}
	if cfg.Google.Scope == "" {
		cfg.Google.Scope = DefaultScope
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	if cfg.Limits.WindowSeconds == 0 {
		cfg.Limits.WindowSeconds = 60
	}
	if cfg.Limits.MaxRequests == 0 {
		cfg.Limits.MaxRequests = 30
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	// Keys exported through env vars usually carry literal "\n" sequences.
	cfg.Google.PrivateKey = strings.ReplaceAll(cfg.Google.PrivateKey, `\n`, "\n")
}
