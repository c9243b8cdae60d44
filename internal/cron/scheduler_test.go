package cron

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// stubJob is a minimal Job for scheduler tests.
type stubJob struct {
	name     string
	schedule string
	runFunc  func(ctx context.Context) error
}

func (j *stubJob) Name() string     { return j.name }
func (j *stubJob) Schedule() string { return j.schedule }
func (j *stubJob) Run(ctx context.Context) error {
	if j.runFunc != nil {
		return j.runFunc(ctx)
	}
	return nil
}

func TestScheduler_RejectsDuplicateJobName(t *testing.T) {
	t.Parallel()

	s := NewScheduler(discardLogger())

	if err := s.RegisterJob(&stubJob{name: "prune", schedule: "* * * * *"}); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if err := s.RegisterJob(&stubJob{name: "prune", schedule: "* * * * *"}); err == nil {
		t.Fatal("duplicate registration should fail")
	}
}

func TestScheduler_InvalidScheduleFailsStart(t *testing.T) {
	t.Parallel()

	s := NewScheduler(discardLogger())
	_ = s.RegisterJob(&stubJob{name: "bad", schedule: "not a schedule"})

	if err := s.Start(); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	t.Parallel()

	s := NewScheduler(discardLogger())
	_ = s.RegisterJob(&stubJob{name: "noop", schedule: "* * * * *"})

	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestScheduler_NilLoggerDefaults(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil)
	if s.logger == nil {
		t.Fatal("logger should default")
	}
}

func TestScheduler_SkipsOverlappingTicks(t *testing.T) {
	t.Parallel()

	var concurrent atomic.Int32
	var peak atomic.Int32

	s := NewScheduler(discardLogger())
	_ = s.RegisterJob(&stubJob{
		name:     "slow",
		schedule: "* * * * *",
		runFunc: func(_ context.Context) error {
			c := concurrent.Add(1)
			for {
				old := peak.Load()
				if c <= old || peak.CompareAndSwap(old, c) {
					break
				}
			}
			time.Sleep(50 * time.Millisecond)
			concurrent.Add(-1)
			return nil
		},
	})

	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Hammer the per-job lock directly; only one holder may run at a time.
	lock := s.locks["slow"]
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if lock.TryLock() {
				concurrent.Add(1)
				time.Sleep(10 * time.Millisecond)
				concurrent.Add(-1)
				lock.Unlock()
			}
		}()
	}
	wg.Wait()

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if peak.Load() > 1 {
		t.Errorf("peak concurrency = %d, want <= 1", peak.Load())
	}
}

func TestScheduler_SurvivesJobError(t *testing.T) {
	t.Parallel()

	s := NewScheduler(discardLogger())
	_ = s.RegisterJob(&stubJob{
		name:     "failing",
		schedule: "* * * * *",
		runFunc: func(_ context.Context) error {
			return errors.New("job failed")
		},
	})

	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	t.Parallel()

	s := NewScheduler(discardLogger())
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
