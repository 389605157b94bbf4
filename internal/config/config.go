// Package config provides configuration types for mcpcore.
//
// The schema favors simplicity and file-based configuration: identities,
// API keys, and CEL policies all live in one YAML document, loaded once at
// startup. It intentionally excludes an admin control plane, multi-tenant
// support, and approval workflows (allow/deny only) — those are concerns of
// a larger deployment, not this runtime core.
package config

import (
	"github.com/spf13/viper"
)

// Config is the top-level configuration for an mcpcore server.
type Config struct {
	// Server configures the inbound transports.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Upstream configures the MCP server(s) this instance proxies to.
	// Either HTTP URL or subprocess command must be specified for
	// single-upstream mode. Multiple upstreams are configured under
	// Upstreams for router/cache mode.
	Upstream UpstreamConfig `yaml:"upstream" mapstructure:"upstream"`

	// Upstreams configures multiple upstream MCP servers for router mode,
	// where tool calls are dispatched to whichever upstream exposes the
	// named tool. Empty unless multi-upstream routing is in use.
	Upstreams []UpstreamConfig `yaml:"upstreams" mapstructure:"upstreams" validate:"omitempty,dive"`

	// AuditFile configures the file-based audit persistence.
	AuditFile AuditFileConfig `yaml:"audit_file" mapstructure:"audit_file"`

	// Auth configures file-based identities and API keys.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// Audit configures where audit logs are written.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// RateLimit configures optional rate limiting.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// Policies defines the access control rules. Optional: when empty, the
	// server uses default-deny (no tool calls allowed).
	Policies []PolicyConfig `yaml:"policies" mapstructure:"policies" validate:"omitempty,dive"`

	// Authz selects the method-level authorization policy applied ahead
	// of dispatch (distinct from the tool-call CEL policy above, which
	// runs afterward and looks at tool name/arguments, not method).
	Authz AuthzConfig `yaml:"authz" mapstructure:"authz"`

	// DevMode enables development conveniences (permissive defaults,
	// verbose logging).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// AuthzConfig configures the JSON-RPC-method-level authorization policy.
type AuthzConfig struct {
	// Policy selects which authz.Policy backs AuthMiddleware: "none"
	// (always allow), "binary" (allow iff authenticated), or "scope"
	// (per-method required scope, see ScopeMap). Defaults to "binary".
	Policy string `yaml:"policy" mapstructure:"policy" validate:"omitempty,oneof=none binary scope"`

	// ScopeMap configures the required scope per JSON-RPC method when
	// Policy is "scope". A method with no entry falls back to
	// DefaultAllow.
	ScopeMap map[string]ScopeRuleConfig `yaml:"scope_map" mapstructure:"scope_map" validate:"omitempty,dive"`

	// DefaultAllow is the ScopeBasedPolicy fallback for methods absent
	// from ScopeMap.
	DefaultAllow bool `yaml:"default_allow" mapstructure:"default_allow"`
}

// ScopeRuleConfig configures the scope requirement for one JSON-RPC method.
type ScopeRuleConfig struct {
	RequiredScope string `yaml:"required_scope" mapstructure:"required_scope" validate:"required"`
	// Optional allows the method through when unauthenticated (e.g. for
	// a method that is meaningful without credentials).
	Optional bool `yaml:"optional" mapstructure:"optional"`
}

// ServerConfig configures the inbound transports.
type ServerConfig struct {
	// HTTPAddr is the address the Streamable HTTP transport listens on
	// (e.g., "127.0.0.1:8080"). Empty disables the HTTP transport (stdio
	// only).
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// Stdio enables the stdio transport, serving a single client over
	// os.Stdin/os.Stdout. Defaults to true when HTTPAddr is empty.
	Stdio bool `yaml:"stdio" mapstructure:"stdio"`

	// TLSCertFile and TLSKeyFile enable HTTPS on the HTTP transport.
	TLSCertFile string `yaml:"tls_cert_file" mapstructure:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file" mapstructure:"tls_key_file"`

	// AllowedOrigins is the DNS-rebinding-protection allowlist for the
	// HTTP transport. A request carrying an Origin header not in this
	// list is rejected.
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// SessionTimeout is the duration before idle HTTP sessions expire
	// (e.g., "30m", "1h").
	SessionTimeout string `yaml:"session_timeout" mapstructure:"session_timeout" validate:"omitempty"`
}

// UpstreamConfig configures an upstream MCP server.
// Exactly one of HTTP or Command must be specified (mutually exclusive).
type UpstreamConfig struct {
	// Name identifies this upstream when Upstreams (plural) is used for
	// multi-upstream routing.
	Name string `yaml:"name" mapstructure:"name"`

	// HTTP is the URL of a remote MCP server (e.g., "http://localhost:3000/mcp").
	HTTP string `yaml:"http" mapstructure:"http" validate:"omitempty,url"`

	// Command is the path to an MCP server executable to spawn as a subprocess.
	Command string `yaml:"command" mapstructure:"command"`

	// Args are the arguments to pass to the subprocess command.
	Args []string `yaml:"args" mapstructure:"args"`

	// HTTPTimeout is the timeout for HTTP requests to upstream (e.g., "30s").
	HTTPTimeout string `yaml:"http_timeout" mapstructure:"http_timeout" validate:"omitempty"`
}

// AuthConfig configures file-based authentication.
type AuthConfig struct {
	// Identities defines the known identities (users/services).
	Identities []IdentityConfig `yaml:"identities" mapstructure:"identities" validate:"omitempty,dive"`

	// APIKeys defines the API keys that map to identities.
	APIKeys []APIKeyConfig `yaml:"api_keys" mapstructure:"api_keys" validate:"omitempty,dive"`

	// HeaderName is the HTTP header an API key is read from when Source
	// is "header" (see apikey.Config). Defaults to "Authorization" with
	// a Bearer prefix when empty.
	HeaderName string `yaml:"header_name" mapstructure:"header_name"`

	// OAuth2 configures JWT/JWKS bearer-token validation as an
	// alternative (or addition) to static API keys.
	OAuth2 OAuth2Config `yaml:"oauth2" mapstructure:"oauth2"`
}

// OAuth2Config configures JWT/JWKS bearer-token validation.
type OAuth2Config struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Issuer   string `yaml:"issuer" mapstructure:"issuer"`
	Audience string `yaml:"audience" mapstructure:"audience"`
	JWKSURL  string `yaml:"jwks_url" mapstructure:"jwks_url" validate:"omitempty,url"`
}

// IdentityConfig defines a file-based identity.
type IdentityConfig struct {
	ID    string   `yaml:"id" mapstructure:"id" validate:"required"`
	Name  string   `yaml:"name" mapstructure:"name" validate:"required"`
	Roles []string `yaml:"roles" mapstructure:"roles" validate:"required,min=1"`
}

// APIKeyConfig defines an API key that authenticates as an identity.
type APIKeyConfig struct {
	// KeyHash is the SHA-256 hash of the API key, prefixed with "sha256:".
	KeyHash string `yaml:"key_hash" mapstructure:"key_hash" validate:"required,startswith=sha256:"`

	// IdentityID references the identity this key authenticates as.
	IdentityID string `yaml:"identity_id" mapstructure:"identity_id" validate:"required"`
}

// AuditConfig configures the async audit channel.
type AuditConfig struct {
	// Output specifies where audit logs are written.
	// Valid values: "stdout", "file:///absolute/path/to/audit.log", or
	// "sqlite:///absolute/path/to/audit.db"
	Output string `yaml:"output" mapstructure:"output" validate:"required,audit_output"`

	ChannelSize      int    `yaml:"channel_size" mapstructure:"channel_size" validate:"omitempty,min=1"`
	BatchSize        int    `yaml:"batch_size" mapstructure:"batch_size" validate:"omitempty,min=1"`
	FlushInterval    string `yaml:"flush_interval" mapstructure:"flush_interval" validate:"omitempty"`
	SendTimeout      string `yaml:"send_timeout" mapstructure:"send_timeout" validate:"omitempty"`
	WarningThreshold int    `yaml:"warning_threshold" mapstructure:"warning_threshold" validate:"omitempty,min=0,max=100"`
	BufferSize       int    `yaml:"buffer_size" mapstructure:"buffer_size" validate:"omitempty,min=1"`
}

// RateLimitConfig configures rate limiting.
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	IPRate          int    `yaml:"ip_rate" mapstructure:"ip_rate" validate:"omitempty,min=1"`
	UserRate        int    `yaml:"user_rate" mapstructure:"user_rate" validate:"omitempty,min=1"`
	CleanupInterval string `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"omitempty"`
	MaxTTL          string `yaml:"max_ttl" mapstructure:"max_ttl" validate:"omitempty"`
}

// PolicyConfig defines a named set of access control rules.
type PolicyConfig struct {
	Name  string       `yaml:"name" mapstructure:"name" validate:"required"`
	Rules []RuleConfig `yaml:"rules" mapstructure:"rules" validate:"required,min=1,dive"`
}

// RuleConfig defines a single access control rule, evaluated in order
// (first match wins).
type RuleConfig struct {
	Name      string `yaml:"name" mapstructure:"name" validate:"required"`
	Condition string `yaml:"condition" mapstructure:"condition" validate:"required"`
	Action    string `yaml:"action" mapstructure:"action" validate:"required,oneof=allow deny"`
}

// AuditFileConfig configures the file-based audit persistence.
type AuditFileConfig struct {
	Dir           string `yaml:"dir" mapstructure:"dir"`
	RetentionDays int    `yaml:"retention_days" mapstructure:"retention_days"`
	MaxFileSizeMB int    `yaml:"max_file_size_mb" mapstructure:"max_file_size_mb"`
	CacheSize     int    `yaml:"cache_size" mapstructure:"cache_size"`
}

// SetDevDefaults applies permissive defaults for development mode, applied
// before validation so required fields are satisfied with minimal config.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}

	if len(c.Auth.Identities) == 0 {
		c.Auth.Identities = []IdentityConfig{
			{ID: "dev-user", Name: "Development User", Roles: []string{"admin"}},
		}
	}

	if len(c.Auth.APIKeys) == 0 {
		c.Auth.APIKeys = []APIKeyConfig{
			{
				KeyHash:    "sha256:6e1e4e1b8f8b36d08901cdb51b97841dfe20f5efd2fd2fd00768971408c46274",
				IdentityID: "dev-user",
			},
		}
	}

	if len(c.Policies) == 0 {
		c.Policies = []PolicyConfig{
			{
				Name: "dev-allow-all",
				Rules: []RuleConfig{
					{Name: "allow-all", Condition: "true", Action: "allow"},
				},
			},
		}
	}

	if c.Audit.Output == "" {
		c.Audit.Output = "stdout"
	}
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	if c.Server.HTTPAddr == "" && !c.Server.Stdio {
		// Neither transport explicitly requested: default to stdio, the
		// shape every MCP client expects when launching a subprocess.
		c.Server.Stdio = true
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.SessionTimeout == "" {
		c.Server.SessionTimeout = "30m"
	}

	if c.Upstream.HTTPTimeout == "" {
		c.Upstream.HTTPTimeout = "30s"
	}

	if c.Audit.Output == "" {
		c.Audit.Output = "stdout"
	}
	if c.Audit.ChannelSize == 0 {
		c.Audit.ChannelSize = 1000
	}
	if c.Audit.BatchSize == 0 {
		c.Audit.BatchSize = 100
	}
	if c.Audit.FlushInterval == "" {
		c.Audit.FlushInterval = "1s"
	}
	if c.Audit.SendTimeout == "" {
		c.Audit.SendTimeout = "100ms"
	}
	if c.Audit.WarningThreshold == 0 {
		c.Audit.WarningThreshold = 80
	}
	if c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = 1000
	}

	// Rate limit defaults — enabled by default for security. Only apply
	// when the user hasn't explicitly set it, since viper.IsSet
	// distinguishes "not set" (zero value) from "explicitly false".
	if !viper.IsSet("rate_limit.enabled") {
		c.RateLimit.Enabled = true
	}
	if c.RateLimit.IPRate == 0 {
		c.RateLimit.IPRate = 100
	}
	if c.RateLimit.UserRate == 0 {
		c.RateLimit.UserRate = 1000
	}
	if c.RateLimit.CleanupInterval == "" {
		c.RateLimit.CleanupInterval = "5m"
	}
	if c.RateLimit.MaxTTL == "" {
		c.RateLimit.MaxTTL = "1h"
	}

	if c.Authz.Policy == "" {
		c.Authz.Policy = "binary"
	}
}
