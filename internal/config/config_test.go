package config

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const sampleConfig = `
version: "1"
boundary:
  root: /srv/workspace
logging:
  level: debug
  format: json
approval:
  enabled: true
  wait: 5m
  read:
    local: true
    external: false
  execute:
    local: false
  disabled:
    - execute_command
session:
  failure_ceiling: 5
providers:
  - id: weather
    transport: stdio
    command: weather-provider
    args: ["--verbose"]
    timeout: 30s
    auto_approve: ["get_forecast"]
  - id: tickets
    transport: streamable_http
    url: https://tickets.internal/mcp
checkpoint:
  path: /var/lib/streamexec/checkpoints.db
  retention: 72h
security:
  rate_limits:
    dispatches_per_min: 100
  url_filter:
    allow_domains:
      - example.com
gateway:
  listen: 127.0.0.1:9000
  auth_token: ${STREAMEXEC_TOKEN:-}
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Boundary.Root != "/srv/workspace" {
		t.Errorf("Boundary.Root = %q", cfg.Boundary.Root)
	}
	if !cfg.Approval.Enabled || !cfg.Approval.Read.Local || cfg.Approval.Read.External {
		t.Errorf("approval policy = %+v", cfg.Approval.Policy)
	}
	if len(cfg.Approval.Disabled) != 1 || cfg.Approval.Disabled[0] != "execute_command" {
		t.Errorf("Disabled = %v", cfg.Approval.Disabled)
	}
	if cfg.Session.FailureCeiling != 5 {
		t.Errorf("FailureCeiling = %d", cfg.Session.FailureCeiling)
	}
	if got := cfg.ApprovalWait(testLogger()); got != 5*time.Minute {
		t.Errorf("ApprovalWait = %v", got)
	}
	if cfg.Security.RateLimits.DispatchesPerMin != 100 {
		t.Errorf("DispatchesPerMin = %d", cfg.Security.RateLimits.DispatchesPerMin)
	}
}

func TestParse_ProviderTimeouts(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	specs := cfg.ProviderSpecs(testLogger())
	if len(specs) != 2 {
		t.Fatalf("got %d specs", len(specs))
	}
	if specs[0].Timeout != 30*time.Second {
		t.Errorf("weather timeout = %v", specs[0].Timeout)
	}
	// No timeout configured: the default applies.
	if specs[1].Timeout != DefaultProviderTimeout {
		t.Errorf("tickets timeout = %v, want default", specs[1].Timeout)
	}
}

func TestParse_UnparseableTimeoutFallsBack(t *testing.T) {
	raw := strings.Replace(sampleConfig, "timeout: 30s", "timeout: not-a-duration", 1)
	cfg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	specs := cfg.ProviderSpecs(testLogger())
	if specs[0].Timeout != DefaultProviderTimeout {
		t.Errorf("timeout = %v, want default on parse failure", specs[0].Timeout)
	}
}

func TestParse_EnvExpansion(t *testing.T) {
	t.Setenv("STREAMEXEC_TEST_ROOT", "/from/env")

	cfg, err := Parse([]byte("version: \"1\"\nboundary:\n  root: ${STREAMEXEC_TEST_ROOT}\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Boundary.Root != "/from/env" {
		t.Errorf("Root = %q", cfg.Boundary.Root)
	}
}

func TestParse_UnresolvedVariableFails(t *testing.T) {
	_, err := Parse([]byte("version: \"1\"\nboundary:\n  root: ${STREAMEXEC_DEFINITELY_UNSET}\n"))
	if err == nil {
		t.Fatal("expected error for unresolved variable")
	}
	if !strings.Contains(err.Error(), "STREAMEXEC_DEFINITELY_UNSET") {
		t.Errorf("err = %v", err)
	}
}

func TestNormalize_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("version: \"1\"\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Session.FailureCeiling != DefaultFailureCeiling {
		t.Errorf("FailureCeiling = %d", cfg.Session.FailureCeiling)
	}
	if cfg.Checkpoint.PruneSchedule != DefaultPruneSchedule {
		t.Errorf("PruneSchedule = %q", cfg.Checkpoint.PruneSchedule)
	}
	if got := cfg.Retention(testLogger()); got != DefaultRetention {
		t.Errorf("Retention = %v", got)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing version",
			yaml: "logging:\n  level: info\n",
			want: "version field is required",
		},
		{
			name: "bad version",
			yaml: "version: \"2\"\n",
			want: "unsupported version",
		},
		{
			name: "bad log level",
			yaml: "version: \"1\"\nlogging:\n  level: loud\n",
			want: "logging.level",
		},
		{
			name: "provider missing id",
			yaml: "version: \"1\"\nproviders:\n  - transport: stdio\n    command: x\n",
			want: "id is required",
		},
		{
			name: "duplicate provider id",
			yaml: "version: \"1\"\nproviders:\n  - id: a\n    transport: stdio\n    command: x\n  - id: a\n    transport: stdio\n    command: y\n",
			want: "duplicate id",
		},
		{
			name: "stdio without command",
			yaml: "version: \"1\"\nproviders:\n  - id: a\n    transport: stdio\n",
			want: "requires a command",
		},
		{
			name: "bad listen address",
			yaml: "version: \"1\"\ngateway:\n  listen: not-an-address\n",
			want: "gateway.listen",
		},
		{
			name: "bad cron expression",
			yaml: "version: \"1\"\ncheckpoint:\n  prune_schedule: \"* * bogus\"\n",
			want: "prune_schedule",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			err = Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want substring %q", err, tt.want)
			}
		})
	}
}
