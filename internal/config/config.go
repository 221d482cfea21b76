// Package config loads and validates the relay's YAML configuration.
// The loaded Config is immutable after startup and passed into components
// rather than read from ambient globals.
package config

// Config is the root configuration for the relay.
type Config struct {
	Server  ServerConfig  `yaml:"server,omitempty"`
	Google  GoogleConfig  `yaml:"google,omitempty"`
	Store   StoreConfig   `yaml:"store,omitempty"`
	Limits  LimitsConfig  `yaml:"limits,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port           int    `yaml:"port,omitempty"`
	Bind           string `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string `yaml:"customBindHost,omitempty"`
}

// GoogleConfig holds the service-account identity and model selection used
// for the Vertex AI upstream. PrivateKey is the PEM-encoded signing key and
// may be given as ${ENV_VAR}; escaped "\n" sequences are normalized.
type GoogleConfig struct {
	ProjectID   string `yaml:"projectId"`
	ClientEmail string `yaml:"clientEmail"`
	PrivateKey  string `yaml:"privateKey"`
	Model       string `yaml:"model,omitempty"`
	Location    string `yaml:"location,omitempty"`
	// Endpoint overrides the computed Vertex stream URL (tests, proxies).
	Endpoint string `yaml:"endpoint,omitempty"`
	// TokenURL overrides the OAuth2 token endpoint.
	TokenURL string `yaml:"tokenUrl,omitempty"`
	Scope    string `yaml:"scope,omitempty"`
}

// StoreConfig selects the tenant/audit store backend.
type StoreConfig struct {
	Backend  string         `yaml:"backend,omitempty"` // "memory" | "sqlite" | "supabase"
	Path     string         `yaml:"path,omitempty"`    // sqlite database file
	Supabase SupabaseConfig `yaml:"supabase,omitempty"`
}

// SupabaseConfig holds the Supabase project credentials.
type SupabaseConfig struct {
	URL        string `yaml:"url,omitempty"`
	ServiceKey string `yaml:"serviceKey,omitempty"`
}

// LimitsConfig controls sliding-window admission.
type LimitsConfig struct {
	WindowSeconds int `yaml:"windowSeconds,omitempty"`
	MaxRequests   int `yaml:"maxRequests,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug"
}

// Default endpoints and model, overridable per environment.
const (
	DefaultModel    = "gemini-3-flash-preview"
	DefaultLocation = "global"
	DefaultTokenURL = "https://oauth2.googleapis.com/token"
	DefaultScope    = "https://www.googleapis.com/auth/cloud-platform"
)
