package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flemzord/streamexec/internal/approval"
	"github.com/flemzord/streamexec/internal/session"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [stream-file]",
		Short: "Execute a tool-call stream with interactive approvals",
		Long: `Reads a tool-call stream from the given file ("-" or no argument
reads stdin), executes it against the local handlers and any configured
remote providers, and asks for confirmation on the terminal when a call
is not covered by the auto-approval policy.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}

			var stream io.Reader = os.Stdin
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				stream = f
			}

			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			connectProviders(ctx, a)

			sess := session.New(session.Config{
				Registry:       a.registry,
				Validator:      a.validator,
				Dispatcher:     a.dispatcher,
				Boundary:       a.boundary,
				Policy:         func() approval.Policy { return cfg.Approval.Policy },
				Requester:      approval.NewConsoleRequester(),
				ApprovalWait:   cfg.ApprovalWait(a.logger),
				Checkpoints:    a.store,
				Display:        &consoleDisplay{out: os.Stdout},
				FailureCeiling: cfg.Session.FailureCeiling,
				Audit:          a.audit,
				Metrics:        a.metrics,
				Logger:         a.logger,
			})

			summary, err := sess.Run(ctx, stream)
			if errors.Is(err, session.ErrEscalated) {
				fmt.Fprintf(os.Stderr, "session %s escalated after %d consecutive failures\n",
					summary.SessionID, summary.Failures)
				os.Exit(2)
			}
			if err != nil {
				return err
			}

			a.logger.Info("session finished",
				"session", summary.SessionID,
				"calls", summary.Calls,
				"status", summary.Status)
			return nil
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	return cmd
}

// connectProviders dials every configured remote provider. A provider that
// fails to connect is logged and skipped; the engine runs without it.
func connectProviders(ctx context.Context, a *app) {
	for _, spec := range a.cfg.ProviderSpecs(a.logger) {
		if err := a.remote.Connect(ctx, spec); err != nil {
			a.logger.Warn("provider connection failed", "provider", spec.ID, "error", err)
		}
	}
}
