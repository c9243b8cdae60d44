package cron

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flemzord/streamexec/internal/checkpoint"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCheckpointPruneJob_Defaults(t *testing.T) {
	t.Parallel()

	j := &CheckpointPruneJob{Logger: discardLogger()}
	if j.Name() != "checkpoint_prune" {
		t.Errorf("name = %q", j.Name())
	}
	if j.Schedule() != "0 * * * *" {
		t.Errorf("schedule = %q", j.Schedule())
	}

	j.ScheduleExpr = "*/30 * * * *"
	if j.Schedule() != "*/30 * * * *" {
		t.Errorf("schedule = %q", j.Schedule())
	}
}

func TestCheckpointPruneJob_PrunesOldRecords(t *testing.T) {
	t.Parallel()

	store := checkpoint.NewMemoryStore()
	old := checkpoint.Record{
		SessionID:  "s1",
		CallID:     1,
		Capability: "read_file",
		CreatedAt:  time.Now().Add(-48 * time.Hour),
	}
	fresh := checkpoint.Record{
		SessionID:  "s1",
		CallID:     2,
		Capability: "read_file",
		CreatedAt:  time.Now(),
	}
	ctx := context.Background()
	if err := store.Save(ctx, old); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, fresh); err != nil {
		t.Fatal(err)
	}

	j := &CheckpointPruneJob{
		Store:     store,
		Retention: 24 * time.Hour,
		Logger:    discardLogger(),
	}
	if err := j.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	records, err := store.List(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].CallID != 2 {
		t.Errorf("surviving records = %+v, want only call 2", records)
	}
}

type fakePinger struct {
	calls atomic.Int32
}

func (p *fakePinger) HealthCheck(_ context.Context) {
	p.calls.Add(1)
}

func TestProviderHealthJob_PingsGateway(t *testing.T) {
	t.Parallel()

	pinger := &fakePinger{}
	j := &ProviderHealthJob{Gateway: pinger, Logger: discardLogger()}

	if j.Name() != "provider_health" {
		t.Errorf("name = %q", j.Name())
	}
	if j.Schedule() != "*/5 * * * *" {
		t.Errorf("schedule = %q", j.Schedule())
	}

	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if pinger.calls.Load() != 1 {
		t.Errorf("health check calls = %d, want 1", pinger.calls.Load())
	}
}
