package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/flemzord/streamexec/internal/capability"
	"github.com/flemzord/streamexec/internal/checkpoint"
	"github.com/flemzord/streamexec/internal/checkpoint/sqlite"
	"github.com/flemzord/streamexec/internal/config"
	"github.com/flemzord/streamexec/internal/dispatch"
	"github.com/flemzord/streamexec/internal/handler"
	"github.com/flemzord/streamexec/internal/metrics"
	"github.com/flemzord/streamexec/internal/remote"
	"github.com/flemzord/streamexec/internal/security"
	"github.com/flemzord/streamexec/internal/telemetry"
)

// app holds the wired execution engine shared by run and serve.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	redactor   *security.Redactor
	audit      *security.AuditLogger
	auditFile  *os.File
	limiter    *security.RateLimiter
	metrics    *metrics.Metrics
	boundary   *security.Boundary
	registry   *capability.Registry
	validator  *capability.Validator
	remote     *remote.Gateway
	dispatcher *dispatch.Dispatcher
	store      checkpoint.Store
	telemetry  *telemetry.Provider
}

// buildApp wires every component from the loaded config. The caller owns
// the returned app and must Close it.
func buildApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, redactor: security.NewRedactor()}

	a.logger = buildLogger(cfg.Logging, a.redactor)

	if err := a.buildAudit(); err != nil {
		return nil, err
	}

	a.limiter = security.NewRateLimiter(cfg.Security.RateLimits)
	a.metrics = metrics.New()

	tel, err := telemetry.Setup(context.Background(), cfg.Telemetry.Endpoint, "streamexec", version)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.telemetry = tel

	root := cfg.Boundary.Root
	if root == "" {
		root, _ = os.Getwd()
	}
	boundary, err := security.NewBoundary(root)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("boundary: %w", err)
	}
	a.boundary = boundary

	a.registry = capability.NewRegistry()
	a.validator = capability.NewValidator(a.registry)

	a.remote = remote.NewGateway(remote.GatewayConfig{
		Registry: a.registry,
		Audit:    a.audit,
		Metrics:  a.metrics,
		Logger:   a.logger,
	})

	a.dispatcher = dispatch.New(dispatch.Config{
		Registry: a.registry,
		Remote:   a.remote,
		Audit:    a.audit,
		Limiter:  a.limiter,
		Metrics:  a.metrics,
		Tracer:   tel.Tracer("streamexec"),
		Logger:   a.logger,
	})

	sandbox := security.NewSandboxExecutor(
		security.SandboxPolicy{Enabled: cfg.Security.Sandbox.Enabled},
		cfg.Security.Sandbox.Limits,
		cfg.Security.Sandbox.Image,
	)
	urlFilter := security.NewURLFilter(cfg.Security.URLFilter)

	for _, h := range handler.All(handler.Deps{
		Boundary:  a.boundary,
		URLFilter: urlFilter,
		Sandbox:   sandbox,
		Logger:    a.logger,
	}) {
		if err := a.dispatcher.RegisterHandler(h); err != nil {
			a.Close()
			return nil, err
		}
	}

	if err := a.buildStore(); err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func (a *app) buildAudit() error {
	var cfg security.AuditLoggerConfig
	cfg.Redactor = a.redactor

	if path := a.cfg.Security.AuditLog; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return fmt.Errorf("audit log: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("audit log: %w", err)
		}
		a.auditFile = f
		cfg.Writer = f
	}

	a.audit = security.NewAuditLogger(cfg)
	return nil
}

func (a *app) buildStore() error {
	if path := a.cfg.Checkpoint.Path; path != "" {
		store, err := sqlite.Open(path)
		if err != nil {
			return fmt.Errorf("checkpoint store: %w", err)
		}
		a.store = store
		return nil
	}
	a.store = checkpoint.NewMemoryStore()
	return nil
}

// Close releases everything buildApp opened.
func (a *app) Close() {
	if a.remote != nil {
		a.remote.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.telemetry != nil {
		_ = a.telemetry.Shutdown(context.Background())
	}
	if a.auditFile != nil {
		_ = a.auditFile.Close()
	}
}

// buildLogger constructs the slog logger with secret redaction applied to
// every record.
func buildLogger(cfg config.LoggingConfig, redactor *security.Redactor) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var inner slog.Handler
	if cfg.Format == "json" {
		inner = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		inner = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(security.NewRedactingHandler(inner, redactor))
}
