// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for streamexec.
package config

import (
	"log/slog"
	"time"

	"github.com/flemzord/streamexec/internal/approval"
	"github.com/flemzord/streamexec/internal/remote"
	"github.com/flemzord/streamexec/internal/security"
)

// Defaults applied by Normalize.
const (
	DefaultFailureCeiling  = 3
	DefaultApprovalWait    = 0 * time.Second
	DefaultProviderTimeout = 60 * time.Second
	DefaultRetention       = 168 * time.Hour
	DefaultPruneSchedule   = "0 * * * *"
	DefaultHealthSchedule  = "*/5 * * * *"
	DefaultListen          = "127.0.0.1:8787"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is
	// supported.
	Version string `yaml:"version"`

	// Boundary declares the root directory that separates local-scoped
	// calls from external ones. Defaults to the working directory.
	Boundary BoundaryConfig `yaml:"boundary"`

	Logging  LoggingConfig  `yaml:"logging"`
	Approval ApprovalConfig `yaml:"approval"`
	Session  SessionConfig  `yaml:"session"`

	// Providers lists remote capability providers to connect at startup.
	Providers []ProviderConfig `yaml:"providers,omitempty"`

	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Security   SecurityConfig   `yaml:"security"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// BoundaryConfig declares the path boundary.
type BoundaryConfig struct {
	Root string `yaml:"root"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	// Level is debug, info, warn, or error. Defaults to info.
	Level string `yaml:"level"`

	// Format is text or json. Defaults to text.
	Format string `yaml:"format"`
}

// ApprovalConfig wraps the gate policy with the suspension timeout.
type ApprovalConfig struct {
	approval.Policy `yaml:",inline"`

	// Wait bounds how long an interactive approval may stay pending.
	// "0s" or empty waits indefinitely; expiry denies by default.
	Wait string `yaml:"wait,omitempty"`
}

// SessionConfig tunes the orchestrator.
type SessionConfig struct {
	// FailureCeiling is the consecutive-failure count that triggers
	// escalation. Defaults to 3.
	FailureCeiling int `yaml:"failure_ceiling"`
}

// ProviderConfig describes one remote provider. Timeout is kept as a
// string so an unparseable value degrades to the default instead of
// failing the whole config load.
type ProviderConfig struct {
	ID          string   `yaml:"id"`
	Transport   string   `yaml:"transport"`
	Command     string   `yaml:"command,omitempty"`
	Args        []string `yaml:"args,omitempty"`
	Env         []string `yaml:"env,omitempty"`
	URL         string   `yaml:"url,omitempty"`
	Timeout     string   `yaml:"timeout,omitempty"`
	AutoApprove []string `yaml:"auto_approve,omitempty"`
}

// CheckpointConfig controls checkpoint persistence.
type CheckpointConfig struct {
	// Path is the SQLite database file. Empty keeps checkpoints in
	// memory.
	Path string `yaml:"path,omitempty"`

	// Retention is how long records are kept before pruning. Defaults to
	// 168h.
	Retention string `yaml:"retention,omitempty"`

	// PruneSchedule is the cron expression for the pruning job.
	PruneSchedule string `yaml:"prune_schedule,omitempty"`
}

// SecurityConfig groups the hard-backstop settings.
type SecurityConfig struct {
	RateLimits security.RateLimitConfig `yaml:"rate_limits"`
	Sandbox    SandboxConfig            `yaml:"sandbox"`
	URLFilter  security.URLFilterConfig `yaml:"url_filter"`

	// AuditLog is the JSONL audit file path. Empty disables file output.
	AuditLog string `yaml:"audit_log,omitempty"`
}

// SandboxConfig controls dockerized command execution.
type SandboxConfig struct {
	Enabled bool   `yaml:"enabled"`
	Image   string `yaml:"image,omitempty"`

	Limits security.ResourceLimits `yaml:"limits"`
}

// GatewayConfig controls the admin HTTP surface.
type GatewayConfig struct {
	// Listen is the bind address. Empty disables the gateway.
	Listen string `yaml:"listen,omitempty"`

	// AuthToken protects the API endpoints with bearer auth. Empty
	// leaves them open; only do that on loopback.
	AuthToken string `yaml:"auth_token,omitempty"`

	// HealthSchedule is the cron expression for provider health pings.
	HealthSchedule string `yaml:"health_schedule,omitempty"`
}

// TelemetryConfig controls trace export.
type TelemetryConfig struct {
	// Endpoint is the OTLP HTTP collector endpoint. Empty disables
	// export.
	Endpoint string `yaml:"endpoint,omitempty"`
}

// Normalize fills defaults in place.
func (c *Config) Normalize() {
	if c.Session.FailureCeiling <= 0 {
		c.Session.FailureCeiling = DefaultFailureCeiling
	}
	if c.Checkpoint.Retention == "" {
		c.Checkpoint.Retention = DefaultRetention.String()
	}
	if c.Checkpoint.PruneSchedule == "" {
		c.Checkpoint.PruneSchedule = DefaultPruneSchedule
	}
	if c.Gateway.HealthSchedule == "" {
		c.Gateway.HealthSchedule = DefaultHealthSchedule
	}
}

// ApprovalWait parses the approval wait. Unparseable values degrade to
// the default, logged, not fatal.
func (c *Config) ApprovalWait(logger *slog.Logger) time.Duration {
	return parseDuration(c.Approval.Wait, DefaultApprovalWait, "approval.wait", logger)
}

// Retention parses the checkpoint retention window.
func (c *Config) Retention(logger *slog.Logger) time.Duration {
	return parseDuration(c.Checkpoint.Retention, DefaultRetention, "checkpoint.retention", logger)
}

// ProviderSpecs converts provider entries into gateway specs, applying
// the timeout default when the configured value is absent or unparseable.
func (c *Config) ProviderSpecs(logger *slog.Logger) []remote.ProviderSpec {
	specs := make([]remote.ProviderSpec, 0, len(c.Providers))
	for _, p := range c.Providers {
		specs = append(specs, remote.ProviderSpec{
			ID:          p.ID,
			Transport:   remote.Transport(p.Transport),
			Command:     p.Command,
			Args:        p.Args,
			Env:         p.Env,
			URL:         p.URL,
			Timeout:     parseDuration(p.Timeout, DefaultProviderTimeout, "providers."+p.ID+".timeout", logger),
			AutoApprove: p.AutoApprove,
		})
	}
	return specs
}

func parseDuration(raw string, def time.Duration, field string, logger *slog.Logger) time.Duration {
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		if logger != nil {
			logger.Warn("unparseable duration, using default",
				"field", field,
				"value", raw,
				"default", def.String())
		}
		return def
	}
	return d
}
