package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/flemzord/streamexec/internal/checkpoint"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "checkpoints.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	rec := checkpoint.Record{
		SessionID:  "s1",
		CallID:     7,
		Capability: "write_to_file",
		Params:     map[string]string{"path": "out.txt"},
		OK:         true,
		Output:     "wrote 10 bytes",
		State:      "streaming",
		CreatedAt:  time.Date(2026, 8, 20, 9, 30, 0, 0, time.UTC),
	}
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Latest(ctx, "s1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got.Capability != rec.Capability || got.Output != rec.Output || !got.OK {
		t.Errorf("got %+v", got)
	}
	if got.Params["path"] != "out.txt" {
		t.Errorf("Params = %v", got.Params)
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, rec.CreatedAt)
	}
}

func TestStore_UpsertOnSameCall(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	first := checkpoint.Record{SessionID: "s1", CallID: 1, Output: "first"}
	second := checkpoint.Record{SessionID: "s1", CallID: 1, Output: "second", Failure: "timeout"}
	if err := s.Save(ctx, first); err != nil {
		t.Fatalf("Save first: %v", err)
	}
	if err := s.Save(ctx, second); err != nil {
		t.Fatalf("Save second: %v", err)
	}

	recs, err := s.List(ctx, "s1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if recs[0].Output != "second" || recs[0].Failure != "timeout" {
		t.Errorf("record = %+v", recs[0])
	}
}

func TestStore_ListOrdered(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	for _, callID := range []int64{3, 1, 2} {
		if err := s.Save(ctx, checkpoint.Record{SessionID: "s1", CallID: callID}); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	recs, err := s.List(ctx, "s1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for i, rec := range recs {
		if rec.CallID != int64(i+1) {
			t.Errorf("recs[%d].CallID = %d, want %d", i, rec.CallID, i+1)
		}
	}
}

func TestStore_LatestEmpty(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	if _, err := s.Latest(context.Background(), "missing"); !errors.Is(err, checkpoint.ErrNoCheckpoint) {
		t.Errorf("err = %v, want ErrNoCheckpoint", err)
	}
}

func TestStore_Prune(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	_ = s.Save(ctx, checkpoint.Record{SessionID: "old", CallID: 1, CreatedAt: base.Add(-72 * time.Hour)})
	_ = s.Save(ctx, checkpoint.Record{SessionID: "new", CallID: 1, CreatedAt: base})

	removed, err := s.Prune(ctx, base.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := s.Latest(ctx, "old"); !errors.Is(err, checkpoint.ErrNoCheckpoint) {
		t.Error("pruned session should be gone")
	}
}

func TestOpen_MigrationIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "checkpoints.db")
	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if err := s1.Save(context.Background(), checkpoint.Record{SessionID: "s", CallID: 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer func() { _ = s2.Close() }()

	rec, err := s2.Latest(context.Background(), "s")
	if err != nil {
		t.Fatalf("Latest after reopen: %v", err)
	}
	if rec.CallID != 1 {
		t.Errorf("CallID = %d, want 1", rec.CallID)
	}
}
