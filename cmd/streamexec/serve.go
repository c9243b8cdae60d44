package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flemzord/streamexec/internal/approval"
	"github.com/flemzord/streamexec/internal/config"
	"github.com/flemzord/streamexec/internal/cron"
	"github.com/flemzord/streamexec/internal/gateway"
	"github.com/flemzord/streamexec/internal/session"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine as a daemon with the admin gateway",
		Long: `Connects the configured remote providers, starts the admin HTTP
gateway, and runs background maintenance jobs. When --stream is given
("-" reads stdin), the stream is executed with approvals resolved through
POST /api/approvals/{id}; progress is broadcast on /ws/events.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			streamPath, _ := cmd.Flags().GetString("stream")

			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, streamPath)
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	cmd.Flags().String("stream", "", "Tool-call stream to execute (\"-\" for stdin)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, streamPath string) error {
	if cfg.Gateway.Listen == "" {
		return errors.New("serve requires gateway.listen to be configured")
	}

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	connectProviders(ctx, a)

	broker := approval.NewBroker()

	gw := gateway.New(gateway.Config{
		Listen:    cfg.Gateway.Listen,
		AuthToken: cfg.Gateway.AuthToken,
	}, gateway.Deps{
		Broker:  broker,
		Remote:  a.remote,
		Metrics: a.metrics,
		Audit:   a.audit,
		Limiter: a.limiter,
		Logger:  a.logger,
	})
	if err := gw.Start(); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = gw.Stop(shutdownCtx)
	}()

	scheduler := cron.NewScheduler(a.logger)
	if err := scheduler.RegisterJob(&cron.CheckpointPruneJob{
		Store:        a.store,
		Retention:    cfg.Retention(a.logger),
		Logger:       a.logger,
		ScheduleExpr: cfg.Checkpoint.PruneSchedule,
	}); err != nil {
		return err
	}
	if err := scheduler.RegisterJob(&cron.ProviderHealthJob{
		Gateway:      a.remote,
		Logger:       a.logger,
		ScheduleExpr: cfg.Gateway.HealthSchedule,
	}); err != nil {
		return err
	}
	if err := scheduler.Start(); err != nil {
		return err
	}
	defer func() { _ = scheduler.Stop(context.Background()) }()

	if streamPath != "" {
		return serveStream(ctx, a, broker, gw, streamPath)
	}

	a.logger.Info("daemon ready", "gateway", cfg.Gateway.Listen)
	<-ctx.Done()
	return nil
}

// serveStream executes one stream under the daemon surfaces: approvals go
// through the gateway broker, events fan out to websocket subscribers.
func serveStream(ctx context.Context, a *app, broker *approval.Broker, gw *gateway.Server, streamPath string) error {
	var stream io.Reader = os.Stdin
	if streamPath != "-" {
		f, err := os.Open(streamPath)
		if err != nil {
			return err
		}
		defer f.Close()
		stream = f
	}

	cfg := a.cfg
	sess := session.New(session.Config{
		Registry:       a.registry,
		Validator:      a.validator,
		Dispatcher:     a.dispatcher,
		Boundary:       a.boundary,
		Policy:         func() approval.Policy { return cfg.Approval.Policy },
		Requester:      broker,
		ApprovalWait:   cfg.ApprovalWait(a.logger),
		Checkpoints:    a.store,
		Display:        gw.Events(),
		FailureCeiling: cfg.Session.FailureCeiling,
		Audit:          a.audit,
		Metrics:        a.metrics,
		Logger:         a.logger,
	})

	summary, err := sess.Run(ctx, stream)
	if errors.Is(err, session.ErrEscalated) {
		return fmt.Errorf("session %s escalated after %d consecutive failures",
			summary.SessionID, summary.Failures)
	}
	if err != nil {
		return err
	}

	a.logger.Info("stream finished",
		"session", summary.SessionID,
		"calls", summary.Calls,
		"status", summary.Status)
	return nil
}
