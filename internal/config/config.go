// Package config defines the configuration object consumed by the core,
// per spec.md §6: a plain Go struct, not a loader. Sourcing it from a
// file, environment variables, or CLI flags is an external concern —
// this package only applies defaults and, optionally, unmarshals
// caller-supplied YAML bytes onto those defaults.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the configuration object enumerated in spec.md §6:
// {api_key?, auth_token?, base_url?, api_version?, timeout, max_retries,
// default_headers, proxy?, connection_pool{...}, rate_limit?}, plus the
// ambient sections (agent runner, agent session, logging, observability)
// this module's expansion adds.
type Config struct {
	// APIKey and AuthToken select Direct-adapter auth; exactly one must
	// be set once Validate has run, matching transport.DirectConfig.
	APIKey    string `yaml:"api_key"`
	AuthToken string `yaml:"auth_token"`

	BaseURL        string            `yaml:"base_url"`
	APIVersion     string            `yaml:"api_version"`
	Timeout        time.Duration     `yaml:"timeout"`
	MaxRetries     int               `yaml:"max_retries"`
	DefaultHeaders map[string]string `yaml:"default_headers"`
	Proxy          string            `yaml:"proxy"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
	RateLimit      *RateLimitConfig     `yaml:"rate_limit"`

	Agent        AgentConfig        `yaml:"agent"`
	AgentSession AgentSessionConfig `yaml:"agent_session"`
	Logging      LoggingConfig      `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ConnectionPoolConfig is spec.md §6's connection_pool entity.
type ConnectionPoolConfig struct {
	MaxIdlePerHost int           `yaml:"max_idle_per_host"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
}

// RateLimitConfig caps outgoing request rate client-side, ahead of the
// server's own rate limiting (§3's RateLimitSnapshot reports the latter).
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// AgentConfig configures the C7 tool-execution loop (internal/agent.Runner).
type AgentConfig struct {
	// MaxIterations bounds a single Run; defaults to 10 per spec.md §4.7.
	MaxIterations int `yaml:"max_iterations"`

	// Concurrent runs tool invocations within one turn concurrently.
	Concurrent bool `yaml:"concurrent"`

	// CompactionBudgetChars is the character budget internal/agent.Compactor
	// enforces; 0 uses its own default.
	CompactionBudgetChars int `yaml:"compaction_budget_chars"`

	// ToolResultMaxChars truncates tool output before it re-enters the
	// conversation; 0 disables truncation.
	ToolResultMaxChars int `yaml:"tool_result_max_chars"`

	// SanitizeToolSecrets enables the tool-result guard's secret redaction.
	SanitizeToolSecrets bool `yaml:"sanitize_tool_secrets"`
}

// AgentSessionConfig configures the C8 subprocess session.
type AgentSessionConfig struct {
	// Command is the subprocess argv, e.g. ["claude", "--print"].
	Command []string `yaml:"command"`

	// PermissionMode is one of "default", "accept_edits",
	// "bypass_permissions", "plan", per spec.md §4.8.
	PermissionMode string `yaml:"permission_mode"`

	// PlanDenylist names tools with side effects that "plan" mode denies.
	PlanDenylist []string `yaml:"plan_denylist"`

	// ReconnectMaxAttempts bounds the reconnect loop before the session
	// transitions to closed.
	ReconnectMaxAttempts int `yaml:"reconnect_max_attempts"`

	// InterruptTimeout bounds how long interrupt() waits for the current
	// query to terminate, per spec.md §4.8's default 5s.
	InterruptTimeout time.Duration `yaml:"interrupt_timeout"`

	// CloseTimeout bounds how long close() waits for a terminal ack
	// before escalating to SIGTERM then SIGKILL.
	CloseTimeout time.Duration `yaml:"close_timeout"`
}

// LoggingConfig controls the ambient log/slog sink's level and format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ObservabilityConfig controls OpenTelemetry tracing, per
// internal/observability.TraceConfig.
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

// TracingConfig mirrors observability.TraceConfig field-for-field so
// callers can populate it from parsed configuration rather than
// constructing the observability type directly.
type TracingConfig struct {
	Enabled        bool              `yaml:"enabled"`
	Endpoint       string            `yaml:"endpoint"`
	ServiceName    string            `yaml:"service_name"`
	ServiceVersion string            `yaml:"service_version"`
	Environment    string            `yaml:"environment"`
	SamplingRate   float64           `yaml:"sampling_rate"`
	Insecure       bool              `yaml:"insecure"`
	Attributes     map[string]string `yaml:"attributes"`
}

// Default returns a Config with every field-level default from spec.md
// §6 and §4.7/§4.8 applied. Callers build on top of it either by mutating
// the returned value directly or by passing YAML bytes to Load.
func Default() *Config {
	return &Config{
		BaseURL:    "https://api.anthropic.com",
		APIVersion: "2023-06-01",
		Timeout:    600 * time.Second,
		MaxRetries: 3,
		ConnectionPool: ConnectionPoolConfig{
			MaxIdlePerHost: 10,
			IdleTimeout:    90 * time.Second,
		},
		Agent: AgentConfig{
			MaxIterations: 10,
		},
		AgentSession: AgentSessionConfig{
			PermissionMode:       "default",
			ReconnectMaxAttempts: 3,
			InterruptTimeout:     5 * time.Second,
			CloseTimeout:         10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load returns Default() with data (YAML bytes) unmarshaled on top, then
// validated. data may be nil, in which case Load behaves like Default
// plus Validate. Reading data from a file, environment variable, or CLI
// flag is the caller's responsibility, per spec.md §6's "Sourcing is
// external."
func Load(data []byte) (*Config, error) {
	cfg := Default()
	if len(data) > 0 {
		if err := unmarshalYAML(data, cfg); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidationError reports every problem Validate found, per the donor's
// pattern of collecting issues rather than failing on the first one.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

// Validate checks the invariants spec.md §6 implies: exactly one auth
// mechanism, non-negative durations/counts, and a recognized permission
// mode.
func (c *Config) Validate() error {
	var issues []string

	if c.APIKey != "" && c.AuthToken != "" {
		issues = append(issues, "exactly one of api_key or auth_token may be set, not both")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.MaxRetries < 0 {
		issues = append(issues, "max_retries must be >= 0")
	}
	if c.ConnectionPool.MaxIdlePerHost < 0 {
		issues = append(issues, "connection_pool.max_idle_per_host must be >= 0")
	}
	if c.ConnectionPool.IdleTimeout < 0 {
		issues = append(issues, "connection_pool.idle_timeout must be >= 0")
	}
	if c.RateLimit != nil && c.RateLimit.RequestsPerMinute < 0 {
		issues = append(issues, "rate_limit.requests_per_minute must be >= 0")
	}
	if c.Agent.MaxIterations < 0 {
		issues = append(issues, "agent.max_iterations must be >= 0")
	}
	if !validPermissionMode(c.AgentSession.PermissionMode) {
		issues = append(issues, `agent_session.permission_mode must be "default", "accept_edits", "bypass_permissions", or "plan"`)
	}
	if c.AgentSession.ReconnectMaxAttempts < 0 {
		issues = append(issues, "agent_session.reconnect_max_attempts must be >= 0")
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func validPermissionMode(mode string) bool {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "default", "accept_edits", "bypass_permissions", "plan":
		return true
	default:
		return false
	}
}
