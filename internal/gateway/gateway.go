// Package gateway exposes the admin HTTP surface: health and status
// endpoints, the approvals API that resolves suspended sessions, the
// Prometheus scrape endpoint, and a websocket feed of live session events.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/flemzord/streamexec/internal/approval"
	"github.com/flemzord/streamexec/internal/metrics"
	"github.com/flemzord/streamexec/internal/remote"
	"github.com/flemzord/streamexec/internal/security"
)

// Config controls the gateway server.
type Config struct {
	// Listen is the bind address. Empty disables the gateway.
	Listen string

	// AuthToken protects the status and API endpoints with bearer auth.
	// Empty leaves them unmounted.
	AuthToken string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

func (c *Config) defaults() {
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Deps are the collaborators the gateway serves. Any of them may be nil;
// the corresponding endpoints degrade rather than fail.
type Deps struct {
	Broker  *approval.Broker
	Remote  *remote.Gateway
	Metrics *metrics.Metrics
	Audit   *security.AuditLogger
	Limiter *security.RateLimiter
	Logger  *slog.Logger
}

// Server is the admin HTTP server.
type Server struct {
	config    Config
	broker    *approval.Broker
	remote    *remote.Gateway
	metrics   *metrics.Metrics
	audit     *security.AuditLogger
	limiter   *security.RateLimiter
	logger    *slog.Logger
	events    *EventHub
	server    *http.Server
	startedAt time.Time
}

// New creates a gateway server. Call Start to begin serving.
func New(cfg Config, deps Deps) *Server {
	cfg.defaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:  cfg,
		broker:  deps.Broker,
		remote:  deps.Remote,
		metrics: deps.Metrics,
		audit:   deps.Audit,
		limiter: deps.Limiter,
		logger:  logger,
		events:  NewEventHub(logger),
	}
}

// Events returns the hub that fans session events out to websocket
// subscribers. It implements session.Display.
func (s *Server) Events() *EventHub {
	return s.events
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	s.startedAt = time.Now()

	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.buildRouter(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", s.config.Listen)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		s.logger.Info("gateway listening", "addr", s.config.Listen)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop drains subscribers and shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	s.events.Close()

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("gateway shutting down")
	return s.server.Shutdown(shutdownCtx)
}
