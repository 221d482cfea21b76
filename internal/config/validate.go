package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "server.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Server.Port),
		})
	}

	validBinds := []string{"loopback", "lan", "custom"}
	if cfg.Server.Bind != "" && !slices.Contains(validBinds, cfg.Server.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "server.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Server.Bind),
		})
	}

	if cfg.Google.ProjectID == "" {
		issues = append(issues, ValidationIssue{Path: "google.projectId", Message: "project id is required"})
	}
	if cfg.Google.ClientEmail == "" {
		issues = append(issues, ValidationIssue{Path: "google.clientEmail", Message: "client email is required"})
	}
	if cfg.Google.PrivateKey == "" {
		issues = append(issues, ValidationIssue{Path: "google.privateKey", Message: "private key is required"})
	} else if !strings.Contains(cfg.Google.PrivateKey, "PRIVATE KEY") {
		issues = append(issues, ValidationIssue{Path: "google.privateKey", Message: "must be a PEM-encoded private key"})
	}

	validBackends := []string{"memory", "sqlite", "supabase"}
	if cfg.Store.Backend != "" && !slices.Contains(validBackends, cfg.Store.Backend) {
		issues = append(issues, ValidationIssue{
			Path:    "store.backend",
			Message: fmt.Sprintf("must be one of %v, got %q", validBackends, cfg.Store.Backend),
		})
	}
	if cfg.Store.Backend == "sqlite" && cfg.Store.Path == "" {
		issues = append(issues, ValidationIssue{Path: "store.path", Message: "required when store.backend is sqlite"})
	}
	if cfg.Store.Backend == "supabase" {
		if cfg.Store.Supabase.URL == "" {
			issues = append(issues, ValidationIssue{Path: "store.supabase.url", Message: "required when store.backend is supabase"})
		}
		if cfg.Store.Supabase.ServiceKey == "" {
			issues = append(issues, ValidationIssue{Path: "store.supabase.serviceKey", Message: "required when store.backend is supabase"})
		}
	}

	if cfg.Limits.WindowSeconds < 0 {
		issues = append(issues, ValidationIssue{Path: "limits.windowSeconds", Message: "must be positive"})
	}
	if cfg.Limits.MaxRequests < 0 {
		issues = append(issues, ValidationIssue{Path: "limits.maxRequests", Message: "must be positive"})
	}

	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	return issues
}
