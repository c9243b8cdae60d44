package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/flemzord/streamexec/internal/checkpoint"
)

// CheckpointPruneJob deletes checkpoint records older than Retention.
type CheckpointPruneJob struct {
	Store        checkpoint.Store
	Retention    time.Duration
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "0 * * * *"
}

// Compile-time interface check.
var _ Job = (*CheckpointPruneJob)(nil)

// Name implements Job.
func (j *CheckpointPruneJob) Name() string { return "checkpoint_prune" }

// Schedule implements Job.
func (j *CheckpointPruneJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 * * * *"
}

// Run prunes records created before now minus Retention.
func (j *CheckpointPruneJob) Run(ctx context.Context) error {
	cutoff := time.Now().Add(-j.Retention)
	pruned, err := j.Store.Prune(ctx, cutoff)
	if err != nil {
		return err
	}
	if pruned > 0 {
		j.Logger.Info("cron: pruned checkpoints", "count", pruned, "cutoff", cutoff)
	}
	return nil
}

// ProviderPinger is the subset of the remote gateway needed by the health
// job. Defined here to keep the scheduler decoupled from the MCP client.
type ProviderPinger interface {
	HealthCheck(ctx context.Context)
}

// ProviderHealthJob pings every connected provider and reconnects broken
// ones.
type ProviderHealthJob struct {
	Gateway      ProviderPinger
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/5 * * * *"
}

// Compile-time interface check.
var _ Job = (*ProviderHealthJob)(nil)

// Name implements Job.
func (j *ProviderHealthJob) Name() string { return "provider_health" }

// Schedule implements Job.
func (j *ProviderHealthJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/5 * * * *"
}

// Run runs one health check pass.
func (j *ProviderHealthJob) Run(ctx context.Context) error {
	j.Gateway.HealthCheck(ctx)
	return nil
}
